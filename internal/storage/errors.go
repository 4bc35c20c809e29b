// Package storage содержит общие ошибки хранилищ клиентов.
package storage

import "errors"

var (
	// ErrNotFound: запись не найдена (удалена между выборкой и обновлением).
	ErrNotFound = errors.New("record not found")
	// ErrConflict: условие записи уже не выполняется, обновление не применено.
	ErrConflict = errors.New("write condition no longer holds")
	// ErrEmailTaken: email уже принадлежит другому клиенту.
	ErrEmailTaken = errors.New("email already registered")
)
