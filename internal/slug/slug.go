// Package slug строит URL-совместимые идентификаторы постов из заголовков.
package slug

import (
	"regexp"
	"strings"
)

var (
	// всё, кроме строчных латинских букв, цифр, пробела и дефиса
	disallowed = regexp.MustCompile(`[^a-z0-9 -]`)
	spaces     = regexp.MustCompile(`\s+`)
	hyphens    = regexp.MustCompile(`-+`)
)

// suffixLength - длина суффикса, который добавляется при коллизии слагов.
const suffixLength = 8

// Generate строит слаг из заголовка.
// Пример: "Hello, World!!" -> "hello-world".
func Generate(title string) string {
	s := strings.ToLower(title)
	s = disallowed.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(s, "-")
	s = hyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "- ")
}

// ForTitle возвращает слаг заголовка, а если он пустой
// (заголовок из одной пунктуации) - идентификатор сущности.
func ForTitle(title, id string) string {
	if s := Generate(title); s != "" {
		return s
	}
	return Generate(id)
}

// WithSuffix добавляет к слагу короткий суффикс, полученный из id.
// Используется, когда два заголовка дают одинаковый слаг.
func WithSuffix(base, id string) string {
	suffix := strings.ReplaceAll(Generate(id), "-", "")
	if len(suffix) > suffixLength {
		suffix = suffix[:suffixLength]
	}
	if suffix == "" {
		return base
	}
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
