package fleet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm prompts the operator, matching pios.py's `kill` confirmation
// semantics exactly: only the literal answer "Y" proceeds, anything else
// (including the common "y") aborts.
func Confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s Y/n: ", prompt)
	reader := bufio.NewReader(in)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line) == "Y"
}
