package dispatch

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	greetingReply = "Hey! How's it going?"
	thanksReply   = "You're welcome! Let me know if you have any more questions."
	goodbyeReply  = "Goodbye! Catch you later."
	tablesReply   = "The available tables in the database are Pune, Solapur, Chennai, Erode, Jabalpur, Thanjavur, and Tiruchirappalli."

	noSQLReferentReply       = "I couldn't find a previous query to generate SQL for."
	noBreakdownReferentReply = "I couldn't find a previous query to provide a breakdown."
	rephraseReply            = "I couldn't find anything related to that. Can you please rephrase your query?"
)

const questionsReply = `The possible questions you can ask are:
* What was the total tax collection in 2013-14 residential for Pune city?
* What was the total tax demand for the year 2015-16 residential for Jabalpur?
* What was the collection gap for the year 2016-17 residential for Thanjavur?
* What was the collection gap for Solapur from 2013-18 residential?
* What will be the tax demand for the year 2025 in Tiruchirappalli for residential?
* What will be the property efficiency (residential) for the year 2019 in Erode?`

// titleCase upper-cases the first character of every space separated word
// and leaves the rest of the word untouched.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if r == utf8.RuneError {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
