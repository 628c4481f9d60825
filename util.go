package zedb

import (
	"strconv"
	"strings"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func parseInt(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func containsSeparator(s string) bool {
	return strings.Contains(s, ValueIDSeparator) || s == nullValue
}
