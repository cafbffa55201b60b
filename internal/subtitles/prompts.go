package subtitles

import "fmt"

func langName(code string) string {
	switch code {
	case "zh":
		return "Simplified Chinese"
	case "en":
		return "English"
	case "jp":
		return "Japanese"
	default:
		return code
	}
}

const splitSystemPrompt = "Use <br> for the split of paragraph."

func splitUserPrompt(sentence string) string {
	return fmt.Sprintf(splitPromptTemplate, sentence)
}

const splitPromptTemplate = `## Role
You are a professional Netflix subtitle splitter who specializes in segmenting continuous text into sentence fragments separated by <br> tags.

## Requirements
1. For Chinese, Korean or Japanese text, each segment should not exceed 12 characters; for English text, each segment should not exceed 20 words.
2. Do not break only at complete sentences; segment on semantic boundaries, such as after words like "and", "so", "but", "that", "which", "when", "where", "because", "although", "however", "therefore", "since" or modal patterns.
3. Do not modify any content of the original text and do not add any content. Only insert <br> between segments.
4. Return the segmented text directly without any other explanatory content.

## Given Text
<split_this_sentence>
%s
</split_this_sentence>

## Output in only JSON format and no other text
{
    "split": "segmented text with <br> tags at split positions"
}`

func orPlaceholder(value, placeholder string) string {
	if value == "" {
		return placeholder
	}
	return value
}

func faithfulPrompt(sourceLang, targetLang, previousContext, nextContext, terms string) string {
	source := langName(sourceLang)
	target := langName(targetLang)
	return fmt.Sprintf(`## Role

You are a professional Netflix subtitle translator, fluent in both %[1]s and %[2]s, as well as their respective cultures.
Your expertise lies in accurately understanding the semantics and structure of the original %[1]s text and faithfully translating it into %[2]s while preserving the original meaning.

## Task

We have a segment of original %[1]s subtitles that need to be directly translated into %[2]s. These subtitles come from a specific context and may contain specific themes and terminology.

1. Translate the original %[1]s subtitles into %[2]s line by line
2. Ensure the translation is faithful to the original, accurately conveying the original meaning
3. Consider the context and professional terminology

## Previous Context

%[3]s

## Next Context

%[4]s

## Points to Note

%[5]s

Output in only JSON format and no other text. For example:

{
  "1": {
    "original": "An example sentence in the source language.",
    "direct": "The corresponding faithful translation in the target language."
  },
  "2": {
    "original": "Another example subtitle line.",
    "direct": "Its faithful translation."
  }
}`,
		source, target,
		orPlaceholder(previousContext, "(no preceding context)"),
		orPlaceholder(nextContext, "(no following context)"),
		orPlaceholder(terms, "(none)"))
}

func freePrompt(sourceLang, targetLang, previousContext, nextContext string) string {
	source := langName(sourceLang)
	target := langName(targetLang)
	return fmt.Sprintf(`## Role

You are a professional Netflix subtitle translator and language consultant.
Your expertise lies not only in accurately understanding the original %[1]s but also in optimizing the %[2]s translation to better suit the target language's expression habits and cultural background.

## Task

We already have a direct translation version of the original %[1]s subtitles.
Your task is to reflect on and improve these direct translations to create more natural and fluent %[2]s subtitles.

1. Analyze the direct translation results line by line, pointing out existing issues
2. Provide detailed modification suggestions
3. Perform free translation based on your analysis
4. Do not add comments or explanations in the translation, as the subtitles are for the audience to read
5. Do not leave empty lines in the free translation, as the subtitles are for the audience to read

## Previous Context

%[3]s

## Next Context

%[4]s

## Translation Analysis Steps

1. Direct Translation Reflection:
   - Evaluate language fluency
   - Check if the language style is consistent with the original text
   - Check the conciseness of the subtitles, point out where the translation is too wordy
2. %[2]s Free Translation:
   - Aim for contextual smoothness and naturalness, conforming to %[2]s expression habits
   - Ensure it is easy for the %[2]s audience to understand and accept
   - Adapt the language style to match the theme
   - Do not abridge the translation; expand when necessary. Full coverage of the original meaning takes priority over conciseness.

Output in only JSON format and no other text. For example:

{
  "1": {
    "original": "All of you know Andrew Ng as a famous computer science professor at Stanford.",
    "direct": "A word-for-word rendering of the line.",
    "reflect": "Notes on accuracy and fluency of the direct translation.",
    "free": "The polished translation the audience will read."
  }
}`,
		source, target,
		orPlaceholder(previousContext, "(no preceding context)"),
		orPlaceholder(nextContext, "(no following context)"))
}
