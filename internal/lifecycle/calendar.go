package lifecycle

import "time"

// DaysUntil возвращает число календарных дней между датой now и датой t
// в часовом поясе loc. Время суток не учитывается.
func DaysUntil(now, t time.Time, loc *time.Location) int {
	y1, m1, d1 := now.In(loc).Date()
	y2, m2, d2 := t.In(loc).Date()
	from := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	to := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// StartOfDay возвращает полночь дня, отстоящего от now на offset дней, в поясе loc.
func StartOfDay(now time.Time, offset int, loc *time.Location) time.Time {
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
}

// DayBucket возвращает половину открытого интервала [полночь, следующая полночь)
// для дня now+offset.
func DayBucket(now time.Time, offset int, loc *time.Location) (time.Time, time.Time) {
	return StartOfDay(now, offset, loc), StartOfDay(now, offset+1, loc)
}

// DayKey форматирует календарный день now для ключей дедупликации.
func DayKey(now time.Time, loc *time.Location) string {
	return now.In(loc).Format("2006-01-02")
}
