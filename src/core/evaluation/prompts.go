package evaluation

const (
	StatementExtractionPromptTmpl = `
Given a question and an answer, break the answer down into one or more fully understandable, standalone statements.
Each statement must be atomic and must not use pronouns. Keep the language of the answer.

Question: {{.Question}}

Answer: {{.Answer}}

Respond only with a JSON object of the form {"statements": ["...", "..."]}.
`
	FaithfulnessVerdictPromptTmpl = `
Your task is to judge the faithfulness of a series of statements based on a given context.
For each statement return verdict 1 if the statement can be directly inferred from the context, or 0 if it cannot.

Context:
{{.Context}}

Statements:
{{range $i, $s := .Statements}}{{$i}}. {{$s}}
{{end}}
Respond only with a JSON object of the form {"verdicts": [{"statement": "...", "reason": "...", "verdict": 0}]}, one entry per statement in the same order.
`
	QuestionGenerationPromptTmpl = `
Generate {{.Count}} different questions that the given answer would answer, written in the language of the answer.
Also decide whether the answer is noncommittal: evasive, vague or ambiguous answers such as "I don't know" or "I'm not sure" are noncommittal (1), otherwise 0.

Answer: {{.Answer}}

Respond only with a JSON object of the form {"questions": ["...", "..."], "noncommittal": 0}.
`
	ContextPrecisionPromptTmpl = `
Given a question, a reference answer and one context, verify whether the context was useful in arriving at the reference answer.
Return verdict 1 if it was useful and 0 if it was not.

Question: {{.Question}}

Reference answer: {{.GroundTruth}}

Context: {{.Context}}

Respond only with a JSON object of the form {"reason": "...", "verdict": 0}.
`
	ContextRecallPromptTmpl = `
Given a context and a reference answer, split the reference answer into sentences and classify whether each sentence can be attributed to the context.
Use attributed 1 when the sentence is supported by the context and 0 when it is not.

Question: {{.Question}}

Context:
{{.Context}}

Reference answer: {{.GroundTruth}}

Respond only with a JSON object of the form {"classifications": [{"statement": "...", "reason": "...", "attributed": 0}]}.
`
)
