package mocks_test

import (
	"testing"

	"github.com/absmach/flcoord/pkg/mqtt/mocks"
	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{pattern: "a/b/c", topic: "a/b/c", want: true},
		{pattern: "a/+/c", topic: "a/x/c", want: true},
		{pattern: "a/#", topic: "a/x/y/z", want: true},
		{pattern: "a/+", topic: "a/x/y", want: false},
		{pattern: "a/b/c", topic: "a/b", want: false},
		{pattern: "#", topic: "anything", want: true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, mocks.Matches(tc.pattern, tc.topic), "%s vs %s", tc.pattern, tc.topic)
	}
}
