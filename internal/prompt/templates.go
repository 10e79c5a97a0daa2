package prompt

// Default templates. A persona may override any of them by name.
const (
	ShouldRespondTemplate = `# About {{agentName}}:
{{bio}}

{{agentName}} is in a chat with other people and speaks only when addressed or when the
conversation is clearly relevant to them. If a message is short, off-topic or meant for
someone else, the answer is IGNORE. If someone asks {{agentName}} to be quiet, or the
conversation with {{agentName}} has ended, the answer is STOP. When in doubt, IGNORE.

# Recent messages:
{{recentMessages}}

# Last message:
{{formattedConversation}}

Answer with exactly one word: RESPOND, IGNORE or STOP.`

	MessageHandlerTemplate = `# You are {{agentName}}, chatting naturally.

Stay in character, keep it concise and refer back to earlier messages when it helps.

# Character:
{{bio}}
{{lore}}
{{knowledge}}

# Recent messages:
{{recentMessages}}

# Reply to:
{{formattedConversation}}

Respond with only the message text of {{agentName}}'s reply.`

	PostTemplate = `# About {{agentName}} (@{{username}}):
{{bio}}
{{lore}}
{{topics}}

{{characterPostExamples}}

{{postDirections}}

# Task: write one post as {{agentName}} that is {{adjective}} about {{topic}} without naming {{topic}} directly.
Rules: no commentary about the task, no asterisks, no emojis, no hashtags, fewer than 270 characters.`

	TaggedPostTemplate = `# About {{agentName}} (@{{username}}):
{{bio}}
{{lore}}
{{topics}}

{{characterPostExamples}}

{{postDirections}}

# Task: write one {{adjective}} post as {{agentName}} that mentions @{{taggedUser}} naturally in the text.
Rules: no commentary about the task, no asterisks, no emojis, no hashtags, fewer than 270 characters,
and the text MUST include @{{taggedUser}}.`
)
