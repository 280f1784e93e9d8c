/**
 * @description
 * This file builds the photographic prompts sent to the generation service.
 * One prompt is produced per style pair (clothing + background), each
 * describing the studio's subject from their stored attributes.
 *
 * @notes
 * - "ohwx" is the trigger token the fine-tuned model was trained on; every
 *   prompt must contain it directly before the subject noun.
 * - Hijab wearers get no hair description at all; the garment covers it.
 */

package app

import (
	"fmt"
	"strings"

	"github.com/proshoot/studio-service/internal/domain"
)

const triggerWord = "ohwx"

// normalizeGender maps free-form gender input onto the three subject nouns
// the model understands.
func normalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "man":
		return "man"
	case "female", "woman":
		return "woman"
	default:
		return "person"
	}
}

// hairDescription renders the hair clause from the subject attributes. It
// returns "" when the hair is covered and a fixed clause for bald subjects.
func hairDescription(attrs domain.UserAttributes) string {
	length := strings.ToLower(strings.TrimSpace(attrs.HairLength))
	if length == "hijab" {
		return ""
	}
	if length == "bald" {
		return "with a bald head"
	}

	var parts []string
	if length != "" {
		parts = append(parts, length)
	}
	if color := strings.ToLower(strings.TrimSpace(attrs.HairColor)); color != "" {
		parts = append(parts, color)
	}
	if len(parts) == 0 {
		return ""
	}
	return "with " + strings.Join(parts, " ") + " hair"
}

// subjectDescription renders the full subject clause: age, ethnicity, gender,
// hair, eyes, glasses.
func subjectDescription(attrs domain.UserAttributes) string {
	var b strings.Builder

	b.WriteString("a ")
	if age := strings.TrimSpace(attrs.Age); age != "" {
		b.WriteString(age)
		b.WriteString(" year old ")
	}
	if ethnicity := strings.TrimSpace(attrs.Ethnicity); ethnicity != "" {
		b.WriteString(strings.ToLower(ethnicity))
		b.WriteString(" ")
	}
	b.WriteString(triggerWord)
	b.WriteString(" ")
	b.WriteString(normalizeGender(attrs.Gender))

	if hair := hairDescription(attrs); hair != "" {
		b.WriteString(" ")
		b.WriteString(hair)
	}
	if eyes := strings.ToLower(strings.TrimSpace(attrs.EyeColor)); eyes != "" {
		b.WriteString(" and ")
		b.WriteString(eyes)
		b.WriteString(" eyes")
	}
	if attrs.Glasses {
		b.WriteString(", wearing glasses")
	}
	return b.String()
}

// BuildPrompts produces one generation prompt per style pair, capped at the
// plan's styles limit. Pairs beyond the limit are silently dropped.
func BuildPrompts(attrs domain.UserAttributes, pairs []domain.StylePair, stylesLimit int) []string {
	if stylesLimit > 0 && len(pairs) > stylesLimit {
		pairs = pairs[:stylesLimit]
	}

	subject := subjectDescription(attrs)
	prompts := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		prompt := fmt.Sprintf(
			"Professional corporate headshot photograph of %s, wearing %s, %s background, "+
				"confident and approachable expression, soft studio lighting, shot on a Canon EOS R5 with an 85mm f/1.4 lens, "+
				"shallow depth of field, sharp focus on the eyes, natural skin texture, 8k, high resolution",
			subject,
			strings.ToLower(strings.TrimSpace(pair.Clothing)),
			strings.ToLower(strings.TrimSpace(pair.Background)),
		)
		prompts = append(prompts, prompt)
	}
	return prompts
}
