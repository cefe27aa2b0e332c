package conversation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// RequiredInfo is the kind of answer a script step waits for.
type RequiredInfo int

const (
	InfoNone RequiredInfo = iota
	InfoFullName
	InfoMotivation
	InfoWeightGoal
	InfoImpactScore
)

func (r RequiredInfo) String() string {
	switch r {
	case InfoFullName:
		return "full_name"
	case InfoMotivation:
		return "motivation"
	case InfoWeightGoal:
		return "weight_goal"
	case InfoImpactScore:
		return "impact_score"
	default:
		return "none"
	}
}

const (
	FirstStep     = 1
	FinalStep     = 5
	ConcludedStep = FinalStep + 1
)

// ScriptStep is one onboarding question. Reminder is the bare question the
// assistant must end a short answer with while the patient is on this step.
type ScriptStep struct {
	Number   int
	Prompt   string
	Reminder string
	Required RequiredInfo
}

var scriptSteps = [FinalStep]ScriptStep{
	{
		Number: 1,
		Prompt: "Olá, é um prazer ter você por aqui! 💚 O Tirze Slim combina a Tirzepatida com um acompanhamento " +
			"multiprofissional para garantir um emagrecimento seguro e eficaz. Ele atua no controle do apetite, " +
			"metabolismo e na melhora dos hábitos de forma sustentável! Para entendermos melhor o seu caso, " +
			"qual o seu nome completo ? Vamos conversar! 😉",
		Reminder: "Qual o seu nome completo?",
		Required: InfoFullName,
	},
	{
		Number: 2,
		Prompt: "Agora, para que a Dra. Marina e a Dra. Marília possam te atender melhor, poderia me contar um " +
			"pouco sobre o que te motiva a buscar o Espaço Zaneti?",
		Reminder: "Poderia me contar um pouco sobre o que te motiva a buscar o Espaço Zaneti?",
		Required: InfoMotivation,
	},
	{
		Number:   3,
		Prompt:   "Entendo perfeitamente. E qual é a sua meta de perda de peso?",
		Reminder: "E qual é a sua meta de perda de peso?",
		Required: InfoWeightGoal,
	},
	{
		Number:   4,
		Prompt:   "De 0 a 10, quanto o seu peso impacta na sua qualidade de vida?",
		Reminder: "De 0 a 10, quanto o seu peso impacta na sua qualidade de vida?",
		Required: InfoImpactScore,
	},
	{
		Number: 5,
		Prompt: "Obrigada por compartilhar! Vou te explicar como o Espaço Zaneti pode fazer a diferença na sua jornada:\n\n" +
			"- Tratamentos individualizados: As Dras. Marina e Marília são especialistas em Nutrologia e Psiquiatria, " +
			"e irão te ajudar a traçar um plano personalizado.\n" +
			"- Abordagem completa: Cuidamos da sua saúde de forma integral, considerando aspectos físicos e emocionais.\n" +
			"- Tecnologia de ponta: Utilizamos equipamentos modernos, como o exame de bioimpedância, para avaliar e " +
			"monitorar seu progresso.\n" +
			"- Equipe multidisciplinar: Nutricionistas, psicólogos e outros profissionais dando todo suporte.\n" +
			"- Foco em resultados: Emagrecer de forma saudável e sustentável, para que você conquiste o corpo e a " +
			"saúde que sempre quis!\n\n" +
			"Em que mais posso te ajudar?",
		Reminder: "Em que mais posso te ajudar?",
		Required: InfoNone,
	},
}

const (
	closingMessage = "Agradeço suas respostas! Como posso ajudar agora?"
	clarifyMessage = "Poderia repetir sua resposta de forma mais clara, por favor?"
)

// StepAt returns the script step n (1-based).
func StepAt(n int) (ScriptStep, bool) {
	if n < FirstStep || n > FinalStep {
		return ScriptStep{}, false
	}
	return scriptSteps[n-1], true
}

// QuestionDetector decides whether a message is an off-script question.
type QuestionDetector interface {
	IsQuestion(message string) bool
}

// DefaultQuestionIndicators are the phrases that mark a message as a question
// even without a question mark.
var DefaultQuestionIndicators = []string{
	"valor", "preço", "preco", "custa", "quanto",
	"pode me dizer", "pode informar", "gostaria de saber", "poderia me falar",
	"onde", "onde fica", "localiza",
	"localização", "localizaçao", "localizacao", "localizacão",
	"tirze", "plano", "plano 1",
}

// KeywordQuestionDetector flags messages containing "?" or any indicator,
// case-insensitively.
type KeywordQuestionDetector struct {
	Indicators []string
}

// NewKeywordQuestionDetector uses DefaultQuestionIndicators when none are given.
func NewKeywordQuestionDetector(indicators ...string) KeywordQuestionDetector {
	if len(indicators) == 0 {
		indicators = DefaultQuestionIndicators
	}
	lowered := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		lowered = append(lowered, strings.ToLower(ind))
	}
	return KeywordQuestionDetector{Indicators: lowered}
}

func (k KeywordQuestionDetector) IsQuestion(message string) bool {
	text := strings.ToLower(message)
	if strings.Contains(text, "?") {
		return true
	}
	for _, ind := range k.Indicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}

var (
	fullNamePattern = regexp.MustCompile(`^\p{L}{2,}(?:\s+\p{L}{2,})+$`)
	digitPattern    = regexp.MustCompile(`\d`)
	impactPattern   = regexp.MustCompile(`\b(?:[0-9]|10)\b`)
)

// Satisfies reports whether message carries the information info asks for.
func Satisfies(info RequiredInfo, message string) bool {
	trimmed := strings.TrimSpace(message)
	switch info {
	case InfoNone:
		return true
	case InfoFullName:
		// Decomposed accents carry combining marks that \p{L} rejects.
		return fullNamePattern.MatchString(norm.NFC.String(trimmed))
	case InfoMotivation:
		return utf8.RuneCountInString(trimmed) > 5
	case InfoWeightGoal:
		return digitPattern.MatchString(trimmed)
	case InfoImpactScore:
		return impactPattern.MatchString(trimmed)
	default:
		return false
	}
}

// ShortAnswerRequest asks the assistant for a brief reply that ends with the
// step's reminder question.
type ShortAnswerRequest struct {
	ThreadID string
	UserID   string
	Message  string
	Step     ScriptStep
	Profile  clinic.Profile
}

// ShortAnswerer produces constrained answers to off-script questions.
type ShortAnswerer interface {
	ShortAnswer(ctx context.Context, req ShortAnswerRequest) (string, error)
}

// Turn is one coalesced message evaluated against the script. Step is the
// user's current step as read by the caller.
type Turn struct {
	UserID   string
	ThreadID string
	Message  string
	Step     int
	Profile  clinic.Profile
}

// Outcome describes how the script handled a turn.
type Outcome struct {
	Reply            string
	Step             int
	NextStep         int
	Advanced         bool
	Concluded        bool
	AnsweredQuestion bool
}

// ScriptMachine drives the five-step onboarding script.
type ScriptMachine struct {
	steps    StepStore
	detector QuestionDetector
	answerer ShortAnswerer
	logger   *logging.Logger
}

func NewScriptMachine(steps StepStore, detector QuestionDetector, answerer ShortAnswerer, logger *logging.Logger) *ScriptMachine {
	if steps == nil {
		panic("conversation: step store cannot be nil")
	}
	if answerer == nil {
		panic("conversation: short answerer cannot be nil")
	}
	if detector == nil {
		detector = NewKeywordQuestionDetector()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ScriptMachine{steps: steps, detector: detector, answerer: answerer, logger: logger.Component("script")}
}

// Handle evaluates turn at turn.Step. Users past the final step get a
// concluded outcome with no reply; the caller switches to free-form mode.
func (m *ScriptMachine) Handle(ctx context.Context, turn Turn) (Outcome, error) {
	if turn.Step > FinalStep {
		return Outcome{Step: turn.Step, NextStep: turn.Step, Concluded: true}, nil
	}
	step, ok := StepAt(turn.Step)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %d", ErrInvalidStep, turn.Step)
	}

	asked := m.detector.IsQuestion(turn.Message)
	var short string
	if asked {
		short = m.shortAnswer(ctx, turn, step)
	}

	if step.Number == FirstStep {
		return m.handleFirstStep(ctx, turn, step, asked, short)
	}

	// An off-script question never counts as the step's answer; the final
	// step needs no answer at all.
	satisfied := step.Required == InfoNone || (!asked && Satisfies(step.Required, turn.Message))
	if satisfied {
		return m.advance(ctx, turn, step, short)
	}

	out := Outcome{Step: step.Number, NextStep: step.Number}
	switch {
	case short != "":
		out.Reply = short
		out.AnsweredQuestion = true
	default:
		if fallback := m.shortAnswer(ctx, turn, step); fallback != "" {
			out.Reply = fallback
		} else {
			out.Reply = clarifyMessage
		}
	}
	m.logger.Info("script step not satisfied", "user_id", turn.UserID, "step", step.Number, "question", asked)
	return out, nil
}

func (m *ScriptMachine) handleFirstStep(ctx context.Context, turn Turn, step ScriptStep, asked bool, short string) (Outcome, error) {
	if asked && short != "" {
		return Outcome{Reply: short, Step: step.Number, NextStep: step.Number, AnsweredQuestion: true}, nil
	}
	if Satisfies(InfoFullName, turn.Message) {
		return m.advance(ctx, turn, step, "")
	}
	return Outcome{Reply: step.Prompt, Step: step.Number, NextStep: step.Number}, nil
}

func (m *ScriptMachine) advance(ctx context.Context, turn Turn, step ScriptStep, short string) (Outcome, error) {
	next := step.Number + 1
	if err := m.steps.SetStep(ctx, turn.UserID, next); err != nil {
		return Outcome{}, fmt.Errorf("conversation: advance step: %w", err)
	}

	var reply strings.Builder
	if short != "" {
		reply.WriteString(short)
		reply.WriteString("\n\n")
	}
	if nextStep, ok := StepAt(next); ok {
		reply.WriteString(nextStep.Prompt)
	} else {
		reply.WriteString(closingMessage)
	}

	m.logger.Info("script step advanced", "user_id", turn.UserID, "from", step.Number, "to", next)
	return Outcome{
		Reply:            strings.TrimSpace(reply.String()),
		Step:             step.Number,
		NextStep:         next,
		Advanced:         true,
		Concluded:        next > FinalStep,
		AnsweredQuestion: short != "",
	}, nil
}

func (m *ScriptMachine) shortAnswer(ctx context.Context, turn Turn, step ScriptStep) string {
	answer, err := m.answerer.ShortAnswer(ctx, ShortAnswerRequest{
		ThreadID: turn.ThreadID,
		UserID:   turn.UserID,
		Message:  turn.Message,
		Step:     step,
		Profile:  turn.Profile,
	})
	if err != nil {
		m.logger.Warn("short answer failed", "user_id", turn.UserID, "step", step.Number, "error", err)
		return ""
	}
	return strings.TrimSpace(answer)
}
