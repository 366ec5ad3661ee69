package process

import (
	"context"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLineLoggerSplitsIndependentlyOfChunking(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lines := rapid.SliceOf(rapid.StringMatching(`[a-z ]{1,12}`)).Draw(t, "lines")
		text := strings.Join(lines, "\n")

		log, hook := logtest.NewNullLogger()
		l := &lineLogger{log: log}

		rest := text
		for len(rest) > 0 {
			n := rapid.IntRange(1, len(rest)).Draw(t, "n")
			_, _ = l.Write([]byte(rest[:n]))
			rest = rest[n:]
		}
		l.flush()

		var want []string
		for _, line := range lines {
			if strings.TrimSpace(line) != "" {
				want = append(want, "STDERR: "+line)
			}
		}
		var got []string
		for _, e := range hook.AllEntries() {
			got = append(got, e.Message)
		}
		if len(want) != len(got) {
			t.Fatalf("want %q, got %q", want, got)
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("line %d: want %q, got %q", i, want[i], got[i])
			}
		}
	})
}

func TestCollectYieldsExactlyStdout(t *testing.T) {
	lookupOrSkip(t, "cat")
	sup := New(nil, Options{})

	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 32<<10).Draw(rt, "data")

		out, err := sup.Run(context.Background(), Spec{Desc: "cat", Program: "cat", Stdin: data})
		require.NoError(rt, err)
		require.Equal(rt, string(data), out)
	})
}
