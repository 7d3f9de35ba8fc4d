// Package prompts contains the prompt text kith sends to language models.
//
// Prompt text is Go code rather than config files because it is program
// logic: the command schema here must match the decoder in the command
// package, and tests check that it does. Users can replace the base
// system prompt through configuration; the schema, correction and
// context templates are always supplied by this package.
//
// Convention: each prompt category gets its own file with an exported
// function that accepts the dynamic parts and returns the interpolated
// prompt string.
package prompts
