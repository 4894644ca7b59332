package extraction

// Markers the extraction prompt asks the model to emit. They double as the
// delimiters ParseFacts splits on.
const (
	qaMarker     = "{qa}"
	answerMarker = "{answer}"
)

// NoMemorySentinel anywhere in extraction output means the exchange carried
// nothing worth keeping.
const NoMemorySentinel = "NO_MEMORY"

const factPrompt = `Given only the information above, what are the 3 most salient high level questions and answers about the subjects in the conversation? Mark each question with "{qa}" and each answer with "{answer}".
For example (do not copy the examples):
{qa}What is the meaning of life? {answer}The meaning of life is 42.
{qa}What is the capital of Thailand? {answer}Bangkok.
Output only the question and answer pairs, no explanations. If the conversation contains nothing worth remembering long term, output NO_MEMORY.`

// summaryPrompt is filled with: current summary, user text, agent name,
// assistant reply, word budget.
const summaryPrompt = `You maintain a short profile summary of a chat user.

Current summary:
%s

Latest exchange:
USER: %s
%s: %s

Rewrite the summary in at most %d words. Keep durable facts such as interests, preferences and recurring topics. Drop small talk. Output only the new summary text. If nothing meaningful changed, repeat the current summary exactly.`
