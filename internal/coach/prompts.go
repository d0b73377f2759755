package coach

import (
	"fmt"
	"strings"

	"github.com/studytrack/backend/internal/recommend"
)

const systemPrompt = `You are a study coach for a student preparing for an exam.
You receive the student's overall progress and a ranked list of subjects to
revise, to prioritise and to start next.

Reply with JSON only, no prose around it:
{"summary": "<two sentences>", "steps": ["<step>", ...]}

Rules:
- At most 5 steps, each one short and concrete.
- Refer to subjects by the names given. Do not invent subjects.
- Fewer days left means more revision and less new material.`

func SystemPrompt() string {
	return systemPrompt
}

// BuildUserPrompt renders the recommendation snapshot for the model.
func BuildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Days until the exam: %d\n", in.DaysLeft)
	fmt.Fprintf(&b, "Overall progress: %.1f%% (learning %.1f, revision %.1f, practice %.1f, test %.1f)\n",
		in.Dashboard.Overall, in.Dashboard.Learning, in.Dashboard.Revision, in.Dashboard.Practice, in.Dashboard.Test)
	fmt.Fprintf(&b, "Topics completed: %d of %d\n\n", in.Dashboard.Stats.Topics.Completed, in.Dashboard.Stats.Topics.Total)

	writeBucket(&b, "Revise", in.Result.Revise)
	writeBucket(&b, "Priority", in.Result.Priority)
	writeBucket(&b, "Start next", in.Result.StartNext)
	return b.String()
}

func writeBucket(b *strings.Builder, title string, recs []recommend.Recommendation) {
	fmt.Fprintf(b, "%s:\n", title)
	if len(recs) == 0 {
		b.WriteString("- (none)\n")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(b, "- %s (score %.1f): %s\n", r.Name, r.Score, r.Reason)
	}
}
