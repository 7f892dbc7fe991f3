package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// patternFormatter renders log lines from a pattern string supporting
// %time, %level, %field and %msg placeholders — the same scheme the teacher
// uses for its capture-agent logs.
type patternFormatter struct {
	pattern string
	time    string
}

func (f *patternFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	return []byte(output + "\n"), nil
}

func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	fields := make([]string, 0, len(entry.Data))
	for key, val := range entry.Data {
		str, ok := val.(string)
		if !ok {
			str = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+str)
	}
	return strings.Join(fields, ",")
}
