package bridge

import "strings"

// Escape makes path safe to embed inside a double-quoted token of a remote
// shell command. Backslashes are doubled before quotes are escaped so the
// inserted backslashes are not escaped a second time. Dollar signs and
// backticks are escaped as well; the remote shell would expand them inside
// double quotes.
func Escape(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for _, r := range path {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ListArgs lists dir on the device. Each match is printed as `d<name>` or
// `f<name>`, terminated by the line ending of the remote shell.
func ListArgs(dir string) []string {
	script := `for f in "` + Escape(dir) + `"/{.,}*; do ` +
		`if [[ -e "$f" ]]; then ` +
		`if [[ -d "$f" ]]; then echo -n d; else echo -n f; fi; ` +
		`busybox basename "$f"; ` +
		`fi; done`
	return []string{"shell", script}
}

// PullArgs copies remotePath into the local directory localDir.
func PullArgs(remotePath, localDir string) []string {
	return []string{"pull", remotePath, localDir}
}

// PushArgs copies localPath to remotePath on the device.
func PushArgs(localPath, remotePath string) []string {
	return []string{"push", localPath, remotePath}
}

// RemoveArgs recursively removes path on the device.
func RemoveArgs(path string) []string {
	return []string{"shell", `rm -r "` + Escape(path) + `"`}
}

// RescanArgs asks the device media scanner to pick up changes below
// storageRootURL.
func RescanArgs(storageRootURL string) []string {
	return []string{"shell", "am", "broadcast", "-a", "android.intent.action.MEDIA_MOUNTED", "-d", storageRootURL}
}
