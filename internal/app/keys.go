package app

import (
	"path"
	"strings"
	"time"
)

// keyLayout names backup objects as <db>/<prefix><timestamp><suffix>.
type keyLayout struct {
	prefix  string
	suffix  string
	timeFmt string
}

var backupKeys = keyLayout{
	prefix:  "db_backup_",
	suffix:  ".gpg",
	timeFmt: "20060102_150405.000000000Z",
}

func (l keyLayout) Key(db string, t time.Time) string {
	return path.Join(db, l.prefix+t.UTC().Format(l.timeFmt)+l.suffix)
}

// Time reads the timestamp back out of a key made by Key. Keys of any other
// shape report false.
func (l keyLayout) Time(key string) (time.Time, bool) {
	base := path.Base(key)
	ts, ok := strings.CutPrefix(base, l.prefix)
	if !ok {
		return time.Time{}, false
	}
	ts, ok = strings.CutSuffix(ts, l.suffix)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(l.timeFmt, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
