// Copyright 2026 QSpace ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package conserved

import (
	"strconv"
	"strings"
)

// SetLabels assigns one label per axis. Empty strings leave axes unlabeled;
// non-empty labels must be unique.
func (a *Array[T]) SetLabels(labels []string) error {
	if len(labels) != a.Rank() {
		return configErrorf("%d labels for rank %d", len(labels), a.Rank())
	}
	seen := make(map[string]int, len(labels))
	for ax, lb := range labels {
		if lb == "" {
			continue
		}
		if prev, ok := seen[lb]; ok {
			return invalidIndexf("label %q set on axes %d and %d", lb, prev, ax)
		}
		seen[lb] = ax
	}
	a.labels = append([]string(nil), labels...)
	return nil
}

// SetLabel assigns the label of one axis.
func (a *Array[T]) SetLabel(axis int, label string) error {
	if axis < 0 || axis >= a.Rank() {
		return invalidIndexf("axis %d out of range for rank %d", axis, a.Rank())
	}
	if label != "" {
		for ax, lb := range a.labels {
			if ax != axis && lb == label {
				return invalidIndexf("label %q already set on axis %d", label, ax)
			}
		}
	}
	a.labels = append([]string(nil), a.labels...)
	a.labels[axis] = label
	return nil
}

// Labels returns a copy of the per-axis labels. Unlabeled axes yield "".
func (a *Array[T]) Labels() []string { return append([]string(nil), a.labels...) }

// AxisByLabel resolves a label to its axis index.
func (a *Array[T]) AxisByLabel(label string) (int, error) {
	for ax, lb := range a.labels {
		if lb != "" && lb == label {
			return ax, nil
		}
	}
	return 0, invalidIndexf("no axis labeled %q", label)
}

// AxesByLabels resolves several labels at once.
func (a *Array[T]) AxesByLabels(labels []string) ([]int, error) {
	axes := make([]int, len(labels))
	for i, lb := range labels {
		ax, err := a.AxisByLabel(lb)
		if err != nil {
			return nil, err
		}
		axes[i] = ax
	}
	return axes, nil
}

// fuseLabels joins member labels into the fused form "(a.b.c)". Unlabeled
// members get a positional "?N" placeholder.
func fuseLabels(members []string, axes []int) string {
	parts := make([]string, len(members))
	for i, lb := range members {
		if lb == "" {
			lb = "?" + strconv.Itoa(axes[i])
		}
		parts[i] = lb
	}
	return "(" + strings.Join(parts, ".") + ")"
}

// splitLabelRaw splits the outermost level of a fused label: "(a.(b.c))"
// yields ["a", "(b.c)"]. A label that is not fused yields nil.
func splitLabelRaw(label string) []string {
	if len(label) < 2 || label[0] != '(' || label[len(label)-1] != ')' {
		return nil
	}
	inner := label[1 : len(label)-1]
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '(':
			depth++
		case ')':
			depth--
		case '.':
			if depth == 0 {
				parts = append(parts, inner[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, inner[start:])
}

// splitLabel inverts fuseLabels: "(a.b)" yields ["a", "b"], with "?N"
// placeholders mapped back to "".
func splitLabel(label string) []string {
	parts := splitLabelRaw(label)
	for i, p := range parts {
		if strings.HasPrefix(p, "?") {
			parts[i] = ""
		}
	}
	return parts
}

// conjLabel maps a label to its conjugate: "a" becomes "a*" and back, fused
// labels conjugate every member.
func conjLabel(label string) string {
	if label == "" {
		return ""
	}
	if parts := splitLabelRaw(label); parts != nil {
		for i, p := range parts {
			parts[i] = conjLabel(p)
		}
		return "(" + strings.Join(parts, ".") + ")"
	}
	if strings.HasSuffix(label, "*") {
		return label[:len(label)-1]
	}
	return label + "*"
}
