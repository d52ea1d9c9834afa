package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[-\s]+`)
)

// "Vitamin C Serum!" -> "vitamin-c-serum"
func slugify(name string) string {
	s := slugStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// 重複していれば -1, -2 ... を付ける
func uniqueSlug(ctx context.Context, base string, exists func(ctx context.Context, slug string) (bool, error)) (string, error) {
	if base == "" {
		base = "item"
	}
	candidate := base
	for i := 1; ; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
