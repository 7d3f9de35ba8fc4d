package prompts

import "fmt"

const correctionTemplate = `Your previous reply could not be used: %s

Reply again with exactly one JSON object in the command format below. Do not add prose, code fences or extra fields.

%s`

// Correction is sent once after a malformed model reply. problem
// describes what was wrong with the reply.
func Correction(problem string) string {
	return fmt.Sprintf(correctionTemplate, problem, CommandSchema())
}
