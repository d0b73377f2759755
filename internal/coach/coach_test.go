package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/studytrack/backend/internal/config"
	"github.com/studytrack/backend/internal/models"
	"github.com/studytrack/backend/internal/recommend"
)

type stubClient struct {
	content string
	err     error
	prompt  string
}

func (s *stubClient) Generate(_ context.Context, _ string, userPrompt string) (*LLMResponse, error) {
	s.prompt = userPrompt
	if s.err != nil {
		return nil, s.err
	}
	return &LLMResponse{Content: s.content}, nil
}

func sampleInput() Input {
	var dash models.DashboardProgress
	dash.Overall = 42.5
	return Input{
		DaysLeft: 30,
		Result: recommend.Result{
			DaysLeft:  30,
			Revise:    []recommend.Recommendation{{SubjectID: 1, Name: "Physics", Type: recommend.TypeRevise, Score: 55}},
			Priority:  []recommend.Recommendation{{SubjectID: 2, Name: "Chemistry", Type: recommend.TypePriority, Score: 40}},
			StartNext: []recommend.Recommendation{},
		},
		Dashboard: dash,
	}
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantErr   bool
		wantSteps int
	}{
		{"plain", `{"summary":"Go","steps":["a","b"]}`, false, 2},
		{"fenced", "```json\n{\"summary\":\"Go\",\"steps\":[\"a\"]}\n```", false, 1},
		{"blank steps dropped", `{"summary":"Go","steps":["a"," ",""]}`, false, 1},
		{"capped", `{"summary":"Go","steps":["1","2","3","4","5","6","7"]}`, false, maxSteps},
		{"no summary", `{"summary":"","steps":["a"]}`, true, 0},
		{"no steps", `{"summary":"Go","steps":[]}`, true, 0},
		{"not json", `Sure! Here is your plan`, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got plan %+v", plan)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePlan: %v", err)
			}
			if len(plan.Steps) != tt.wantSteps {
				t.Errorf("steps = %d, want %d", len(plan.Steps), tt.wantSteps)
			}
		})
	}
}

func TestPlanUsesLLM(t *testing.T) {
	stub := &stubClient{content: `{"summary":"Revise physics first.","steps":["Revise Physics"]}`}
	c := New(stub, "test-model", zap.NewNop())

	plan := c.Plan(context.Background(), sampleInput())
	if plan.Source != SourceLLM || plan.Model != "test-model" {
		t.Errorf("plan source/model = %s/%s", plan.Source, plan.Model)
	}
	if !strings.Contains(stub.prompt, "Physics") || !strings.Contains(stub.prompt, "Days until the exam: 30") {
		t.Errorf("prompt missing snapshot:\n%s", stub.prompt)
	}
	if !strings.Contains(stub.prompt, "Start next:\n- (none)") {
		t.Errorf("empty bucket not rendered:\n%s", stub.prompt)
	}
}

func TestPlanFallsBack(t *testing.T) {
	tests := []struct {
		name string
		stub *stubClient
	}{
		{"llm error", &stubClient{err: errors.New("overloaded")}},
		{"bad json", &stubClient{content: "no"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := New(tt.stub, "m", zap.NewNop()).Plan(context.Background(), sampleInput())
			if plan.Source != SourceFallback {
				t.Fatalf("source = %s, want fallback", plan.Source)
			}
			want := []string{"Revise Physics", "Continue learning Chemistry"}
			if len(plan.Steps) != len(want) {
				t.Fatalf("steps = %v", plan.Steps)
			}
			for i := range want {
				if plan.Steps[i] != want[i] {
					t.Errorf("step %d = %q, want %q", i, plan.Steps[i], want[i])
				}
			}
		})
	}
}

func TestFallbackEmpty(t *testing.T) {
	plan := Fallback(Input{DaysLeft: 10})
	if len(plan.Steps) != 1 {
		t.Errorf("steps = %v", plan.Steps)
	}
}

func TestMockClientParses(t *testing.T) {
	c := FromConfig(config.CoachConfig{Provider: "mock"}, zap.NewNop())
	plan := c.Plan(context.Background(), sampleInput())
	if plan.Source != SourceLLM || plan.Model != "mock" {
		t.Errorf("plan = %+v", plan)
	}
}
