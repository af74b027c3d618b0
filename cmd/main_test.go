package main

import "testing"

func TestEnvFileFromArgs(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{nil, ".env"},
		{[]string{"serve"}, ".env"},
		{[]string{"--env-file", "prod.env", "serve"}, "prod.env"},
		{[]string{"worker", "--env-file=staging.env"}, "staging.env"},
		{[]string{"--env-file"}, ".env"},
	}
	for _, tc := range cases {
		if got := envFileFromArgs(tc.args); got != tc.want {
			t.Fatalf("envFileFromArgs(%v) = %q, want %q", tc.args, got, tc.want)
		}
	}
}
