package coach

import "fmt"

// TargetScriptWords is roughly three minutes of speech.
const TargetScriptWords = 450

const tipsPromptTemplate = `Here is a presentation script: %q.
You will provide instructions on how to make the presentation better. Pay attention to topics
that may not be clear for the audience, topics the speaker spent too much time on, and topics
the speaker spent too little time on.

Format the answer as an HTML unordered list: start with <ul>, put each tip in its own <li>,
and end with </ul>. Do not add any text before or after the list.`

const optimizePromptTemplate = `Here is a presentation script: %q.

Here are tips on how to improve it:
%s

Rewrite the presentation as a concise spoken script that takes about three minutes to deliver
(roughly %d words). Give it a clear introduction, body and conclusion, apply the tips above,
and keep the speaker's own voice. Answer with the plain-text script only: no headings, no
markdown, no commentary.`

const scorePromptTemplate = `Here is a presentation script: %q.

Score the pitch on a scale from 1 (poor) to 10 (excellent) for each of these criteria:
- clarity: how understandable the message is
- structure: whether it has an introduction, body and conclusion that flow well
- engagement: how compelling it is for the audience
- conciseness: whether time is spent in proportion to each topic's importance
- overall: your holistic judgement

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{"clarity": <1-10>, "structure": <1-10>, "engagement": <1-10>, "conciseness": <1-10>, "overall": <1-10>, "rationale": "<one short paragraph>"}`

func tipsPrompt(transcript string) string {
	return fmt.Sprintf(tipsPromptTemplate, transcript)
}

func optimizePrompt(transcript, tips string) string {
	return fmt.Sprintf(optimizePromptTemplate, transcript, tips, TargetScriptWords)
}

func scorePrompt(transcript string) string {
	return fmt.Sprintf(scorePromptTemplate, transcript)
}
