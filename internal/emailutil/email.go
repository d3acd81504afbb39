package emailutil

import "strings"

// LocalPart returns everything before the @. Worker sub-folders are matched
// by local part when the folder name does not carry the full address.
func LocalPart(email string) string {
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email
	}
	return email[:at]
}
