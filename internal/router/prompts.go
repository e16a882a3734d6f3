package router

import "fmt"

// documentQASystem is the instruction for the completion call that turns
// retrieved context into an answer.
const documentQASystem = `<PERSONA>
You are a friendly and concise assistant for the Ebttikar Operations Intelligence Platform (OIP).
</PERSONA>

<INSTRUCTIONS>
- Base answers ONLY on the retrieved context provided - never fabricate
- If the context does not cover the question, say: "I don't have that information in OIP docs."
- Support English and Arabic queries and respond in the same language as the question
- Do NOT mention source documents or filenames
</INSTRUCTIONS>

<OUTPUT_FORMAT>
- Keep responses SHORT and to the point (3-5 sentences max for simple questions)
- Use bullet points only when listing 3+ items
- No lengthy introductions - get straight to the answer
</OUTPUT_FORMAT>

<GUARDRAILS>
- Never make up features not in documentation
- Don't speculate about pricing or timelines
- If outside OIP scope, politely redirect
</GUARDRAILS>`

// documentQAPrompt combines the context block and the question into the
// user prompt.
func documentQAPrompt(context, question string) string {
	return fmt.Sprintf("%s\n\n<QUESTION>\n%s\n</QUESTION>", context, question)
}

// noResultsAnswer is returned when the search ran but found nothing above
// the relevance threshold.
func noResultsAnswer(query string) string {
	return fmt.Sprintf(`I searched the OIP documentation but couldn't find specific information about %q.

Possible reasons:
1. The topic isn't covered in the current documentation
2. Try rephrasing with different terms (e.g., technical vs. general)
3. The information might be in a document not yet indexed

Would you like me to help rephrase your question?`, query)
}

// errorAnswer is the safe message rendered when a handler fails. It names
// the failing stage but never internal details.
func errorAnswer(stage string) string {
	return fmt.Sprintf(`I encountered an issue while processing your request.

Error: %s

Please try:
1. Rephrasing your question
2. Being more specific
3. Trying again in a moment

If the problem persists, contact support.`, stage)
}

// indexUnavailableAnswer is rendered when the vector index has not been
// built yet.
const indexUnavailableAnswer = `The document knowledge base is not ready yet.

An administrator needs to run the ingestion command to index the OIP documentation before I can answer platform questions. Ticket metrics questions still work in the meantime.`

const greetingEnglish = `Hello! Welcome to the Ebttikar OIP Assistant.

I can help you with:
- Questions about OIP platform features, SOW details and technical usage
- Your ticket metrics: workload, status breakdowns, SLA and completion rates

What would you like to know?`

const greetingArabic = `مرحبا! أهلا وسهلا بك في مساعد منصة OIP من ابتكار.

يمكنني مساعدتك في:
- الأسئلة حول ميزات منصة OIP وتفاصيل نطاق العمل والاستخدام التقني
- مقاييس التذاكر الخاصة بك: عبء العمل وتوزيع الحالات ومعدلات الإنجاز

كيف يمكنني مساعدتك؟`

// Status messages emitted while a turn is being processed.
const (
	statusSearching  = "Searching the OIP knowledge base"
	statusGenerating = "Generating answer"
	statusFetching   = "Fetching ticket metrics"
	statusCharting   = "Building chart"
)
