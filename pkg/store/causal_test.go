package store

import "testing"

func TestEqualStrings(t *testing.T) {
	cases := []struct {
		a, b []string
		want bool
	}{
		{[]string{"a", "b"}, []string{"a", "b"}, true},
		{[]string{"a", "b"}, []string{"b", "a"}, false},
		{[]string{"a"}, []string{"a", "b"}, false},
		{nil, nil, true},
	}
	for _, c := range cases {
		if got := equalStrings(c.a, c.b); got != c.want {
			t.Errorf("equalStrings(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
