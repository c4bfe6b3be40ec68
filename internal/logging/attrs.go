package logging

import (
	"log/slog"
	"slices"
)

// handlerState is the level, WithAttrs attributes and open groups shared by
// the buffer and journal handlers.
type handlerState struct {
	level  slog.Leveler
	attrs  []scopedAttr
	groups []string
}

// scopedAttr is a WithAttrs attribute with the groups open when it was added.
type scopedAttr struct {
	groups []string
	attr   slog.Attr
}

func (s handlerState) enabled(level slog.Level) bool {
	return level >= s.level.Level()
}

func (s handlerState) withAttrs(attrs []slog.Attr) handlerState {
	added := make([]scopedAttr, len(attrs))
	for i, a := range attrs {
		added[i] = scopedAttr{groups: s.groups, attr: a}
	}
	s.attrs = slices.Concat(s.attrs, added)
	return s
}

func (s handlerState) withGroup(name string) handlerState {
	s.groups = slices.Concat(s.groups, []string{name})
	return s
}

// each calls fn for every leaf attribute of the handler and the record,
// with the group path leading to it. Groups nest; empty attributes are
// skipped. The module attribute is reported with an empty path.
func (s handlerState) each(r slog.Record, fn func(path []string, a slog.Attr)) {
	for _, sa := range s.attrs {
		walkAttr(sa.groups, sa.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		walkAttr(s.groups, a, fn)
		return true
	})
}

func walkAttr(path []string, a slog.Attr, fn func(path []string, a slog.Attr)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Key == "module" && a.Value.Kind() == slog.KindString {
		fn(nil, a)
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		inner := path
		if a.Key != "" {
			inner = slices.Concat(path, []string{a.Key})
		}
		for _, ga := range a.Value.Group() {
			walkAttr(inner, ga, fn)
		}
		return
	}
	fn(path, a)
}
