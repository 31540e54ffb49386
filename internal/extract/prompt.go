package extract

import openai "github.com/sashabaranov/go-openai"

const systemPrompt = `You are a CRM data extraction assistant. Extract structured details from the provided customer interaction transcript.
If fields are missing, set them to null.
The output MUST be a valid JSON object with the following structure:
{
  "customer": {
    "full_name": string,
    "phone": string,
    "address": string,
    "city": string,
    "locality": string
  },
  "interaction": {
    "summary": string,
    "created_at": string (ISO 8601)
  }
}`

// BuildMessages returns the chat messages for one extraction: the fixed system
// instruction followed by the transcript as the user turn.
func BuildMessages(transcript string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: transcript},
	}
}
