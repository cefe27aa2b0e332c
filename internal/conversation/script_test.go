package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"
)

func newTestMachine(t *testing.T, answerer *fakeAnswerer) (*ScriptMachine, *MemoryStepStore) {
	t.Helper()
	store := NewMemoryStepStore()
	return NewScriptMachine(store, nil, answerer, testLogger()), store
}

func TestSatisfiesFullName(t *testing.T) {
	cases := map[string]bool{
		"Maria Silva":     true,
		"José Ángel Ruiz": true,
		"  Ana  Souza  ":  true,
		"abc":             false,
		"M":               false,
		"quanto custa?":   false,
		"Maria 2":         false,
		"Maria S":         false,
	}
	for input, want := range cases {
		assert.Equal(t, want, Satisfies(InfoFullName, input), input)
	}
}

func TestSatisfiesFullNameDecomposedAccents(t *testing.T) {
	name := norm.NFD.String("José Ángel Ruiz")
	require.NotEqual(t, "José Ángel Ruiz", name)
	assert.True(t, Satisfies(InfoFullName, name))
}

func TestSatisfiesOtherSteps(t *testing.T) {
	assert.True(t, Satisfies(InfoMotivation, "quero mais saúde"))
	assert.False(t, Satisfies(InfoMotivation, "saúde"))
	assert.True(t, Satisfies(InfoWeightGoal, "perder 8kg"))
	assert.False(t, Satisfies(InfoWeightGoal, "bastante"))
	assert.True(t, Satisfies(InfoImpactScore, "uns 7"))
	assert.True(t, Satisfies(InfoImpactScore, "10"))
	assert.False(t, Satisfies(InfoImpactScore, "muito"))
	assert.True(t, Satisfies(InfoNone, ""))
}

func TestKeywordQuestionDetector(t *testing.T) {
	d := NewKeywordQuestionDetector()
	assert.True(t, d.IsQuestion("Qual o valor?"))
	assert.True(t, d.IsQuestion("Onde fica a clínica"))
	assert.True(t, d.IsQuestion("QUANTO é o tratamento"))
	assert.False(t, d.IsQuestion("Maria Silva"))

	custom := NewKeywordQuestionDetector("Desconto")
	assert.True(t, custom.IsQuestion("tem desconto"))
	assert.False(t, custom.IsQuestion("quanto custa"))
}

func TestScriptFirstStepAdvancesOnFullName(t *testing.T) {
	answerer := &fakeAnswerer{}
	m, store := newTestMachine(t, answerer)
	ctx := context.Background()

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "Maria Silva", Step: 1})
	require.NoError(t, err)

	next, _ := StepAt(2)
	assert.True(t, out.Advanced)
	assert.Equal(t, 2, out.NextStep)
	assert.Equal(t, next.Prompt, out.Reply)
	assert.Empty(t, answerer.requests)

	step, ok, err := store.Lookup(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, step)
}

func TestScriptFirstStepRepeatsPromptForInvalidName(t *testing.T) {
	m, store := newTestMachine(t, &fakeAnswerer{})
	out, err := m.Handle(context.Background(), Turn{UserID: "u1", Message: "oi", Step: 1})
	require.NoError(t, err)

	first, _ := StepAt(1)
	assert.False(t, out.Advanced)
	assert.Equal(t, first.Prompt, out.Reply)
	_, ok, _ := store.Lookup(context.Background(), "u1")
	assert.False(t, ok)
}

func TestScriptFirstStepAnswersQuestionWithoutAdvancing(t *testing.T) {
	answerer := &fakeAnswerer{answer: "O tratamento custa R$ 1.200. Qual o seu nome completo?"}
	m, _ := newTestMachine(t, answerer)

	out, err := m.Handle(context.Background(), Turn{UserID: "u1", ThreadID: "th", Message: "quanto custa?", Step: 1})
	require.NoError(t, err)

	assert.False(t, out.Advanced)
	assert.True(t, out.AnsweredQuestion)
	assert.Equal(t, answerer.answer, out.Reply)
	require.Len(t, answerer.requests, 1)
	assert.Equal(t, 1, answerer.requests[0].Step.Number)
	assert.Equal(t, "th", answerer.requests[0].ThreadID)
}

func TestScriptFirstStepFallsBackToPromptWhenAnswerFails(t *testing.T) {
	m, _ := newTestMachine(t, &fakeAnswerer{err: errors.New("boom")})
	out, err := m.Handle(context.Background(), Turn{UserID: "u1", Message: "quanto custa?", Step: 1})
	require.NoError(t, err)

	first, _ := StepAt(1)
	assert.Equal(t, first.Prompt, out.Reply)
}

func TestScriptQuestionWithSatisfyingAnswerStaysOnStep(t *testing.T) {
	answerer := &fakeAnswerer{answer: "Temos planos a partir de R$ 900. E qual é a sua meta de perda de peso?"}
	m, store := newTestMachine(t, answerer)
	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "u1", 3))

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "quero perder uns 10kg, mas quanto custa o tratamento?", Step: 3})
	require.NoError(t, err)

	assert.False(t, out.Advanced)
	assert.Equal(t, 3, out.NextStep)
	assert.Equal(t, answerer.answer, out.Reply)
	step, _, _ := store.Lookup(ctx, "u1")
	assert.Equal(t, 3, step)
}

func TestScriptUnsatisfiedAnswerAsksForClarification(t *testing.T) {
	answerer := &fakeAnswerer{}
	m, store := newTestMachine(t, answerer)
	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "u1", 2))

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "sim", Step: 2})
	require.NoError(t, err)

	assert.Equal(t, clarifyMessage, out.Reply)
	assert.Len(t, answerer.requests, 1)
	assert.Equal(t, 2, out.NextStep)
}

func TestScriptUnsatisfiedAnswerUsesFallbackShortAnswer(t *testing.T) {
	answerer := &fakeAnswerer{answer: "Entendi! Poderia me contar um pouco sobre o que te motiva a buscar o Espaço Zaneti?"}
	m, store := newTestMachine(t, answerer)
	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "u1", 2))

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "sim", Step: 2})
	require.NoError(t, err)
	assert.Equal(t, answerer.answer, out.Reply)
	assert.False(t, out.AnsweredQuestion)
}

func TestScriptAdvancesThroughImpactScore(t *testing.T) {
	m, store := newTestMachine(t, &fakeAnswerer{})
	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "u1", 4))

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "8", Step: 4})
	require.NoError(t, err)

	final, _ := StepAt(5)
	assert.Equal(t, final.Prompt, out.Reply)
	assert.Equal(t, 5, out.NextStep)
	assert.False(t, out.Concluded)
}

func TestScriptFinalStepAlwaysConcludes(t *testing.T) {
	answerer := &fakeAnswerer{answer: "A consulta custa R$ 600."}
	m, store := newTestMachine(t, answerer)
	ctx := context.Background()
	require.NoError(t, store.SetStep(ctx, "u1", 5))

	out, err := m.Handle(ctx, Turn{UserID: "u1", Message: "quanto custa a consulta?", Step: 5})
	require.NoError(t, err)

	assert.True(t, out.Concluded)
	assert.True(t, out.AnsweredQuestion)
	assert.Equal(t, "A consulta custa R$ 600.\n\n"+closingMessage, out.Reply)
	step, _, _ := store.Lookup(ctx, "u1")
	assert.Equal(t, ConcludedStep, step)
}

func TestScriptConcludedUserIsPassedThrough(t *testing.T) {
	answerer := &fakeAnswerer{}
	m, _ := newTestMachine(t, answerer)

	out, err := m.Handle(context.Background(), Turn{UserID: "u1", Message: "quanto custa?", Step: ConcludedStep})
	require.NoError(t, err)
	assert.True(t, out.Concluded)
	assert.Empty(t, out.Reply)
	assert.Empty(t, answerer.requests)
}

func TestScriptRejectsInvalidStep(t *testing.T) {
	m, _ := newTestMachine(t, &fakeAnswerer{})
	_, err := m.Handle(context.Background(), Turn{UserID: "u1", Message: "oi", Step: 0})
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestShortAnswerInstructionsEndWithReminder(t *testing.T) {
	step, _ := StepAt(3)
	got := ShortAnswerInstructions(step)
	assert.Contains(t, got, "passo 3")
	assert.Contains(t, got, step.Reminder)
}
