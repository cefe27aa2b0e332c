package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/availability"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

// FreeFormInstructions are appended to every run once the script is over.
func FreeFormInstructions(now time.Time, profile clinic.Profile) string {
	hours := clinic.BusinessHoursText()
	var b strings.Builder
	fmt.Fprintf(&b, "A médica responsável por este atendimento e agendamento é a %s.\n", profile.DisplayName)
	fmt.Fprintf(&b, "Essa é a data de hoje: %s, e hoje é %s.\n", now.Format("2006-01-02"), availability.WeekdayName(now.Weekday()))
	b.WriteString("/ Sempre pergunte o nome do paciente e se apresente no primeiro contato\n")
	b.WriteString("/ Ao listar horários livres retorne somente 1 horário para cada 3 dias.\n")
	fmt.Fprintf(&b, "/ Retorne somente horários que estejam dentro do %s.\n", hours)
	fmt.Fprintf(&b, "/ Leve em consideração a %s e seus horários para disponibilizar horários livres\n", profile.DisplayName)
	b.WriteString("/ Ao ser perguntado sobre tirzeslim fale sobre sem falar o preço.\n")
	return b.String()
}

// ShortAnswerInstructions constrain an off-script answer to end with the
// step's reminder question.
func ShortAnswerInstructions(step ScriptStep) string {
	return "Após responder, finalize **obrigatoriamente** com a pergunta do roteiro." +
		fmt.Sprintf("\n\n⚠️ IMPORTANTE: Você está no passo %d do roteiro. ", step.Number) +
		fmt.Sprintf("Após sua resposta curta, **obrigatoriamente** finalize com esta pergunta: %q.", step.Reminder) +
		"Certifique-se de que a pergunta do script seja a última coisa dita." +
		"priorize os valores parcelados na resposta"
}
