package spinner

// FormatCompletionText formats a settled key without its status symbol.
func FormatCompletionText(c Completion) string {
	if c.Detail == "" {
		return c.ID
	}
	return c.ID + " (" + c.Detail + ")"
}
