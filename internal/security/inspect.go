package security

import "regexp"

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|above|all)\s+instructions?`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)\s+(you\s+)?(know|learned)`),
	regexp.MustCompile(`(?i)act\s+as\s+if\s+you\s+are\s+(not\s+)?an?\s+ai`),
	regexp.MustCompile(`(?i)pretend\s+(you\s+are|to\s+be)\s+(not\s+)?an?\s+ai`),
	regexp.MustCompile(`(?i)you\s+are\s+(now\s+)?(not\s+)?an?\s+ai`),
	regexp.MustCompile(`(?i)system\s*:\s*`),
	regexp.MustCompile(`(?i)assistant\s*:\s*`),
	regexp.MustCompile(`(?i)human\s*:\s*`),
	regexp.MustCompile(`(?i)\[\s*system\s*\]`),
	regexp.MustCompile(`(?i)\[\s*assistant\s*\]`),
}

// DetectPromptInjection reports whether input looks like an attempt to
// override the model's instructions.
func DetectPromptInjection(input string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}

var sensitivePatterns = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), "***"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "***@***.***"},
	{regexp.MustCompile(`\b\d{17}[\dXx]\b|\b\d{15}\b`), "***************"},
	{regexp.MustCompile(`\b\d{3,4}[-.\s]?\d{3,4}[-.\s]?\d{4,6}\b`), "***-***-****"},
}

// CleanSensitiveData masks API keys, e-mail addresses, ID and phone numbers.
// Use it before user content reaches a log line.
func CleanSensitiveData(text string) string {
	for _, p := range sensitivePatterns {
		text = p.re.ReplaceAllString(text, p.mask)
	}
	return text
}
