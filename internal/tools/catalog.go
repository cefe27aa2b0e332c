// Package tools executes the functions the assistant may call during a run.
package tools

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

// Function names exposed to the assistant.
const (
	FuncCreateEvent     = "handleEvent"
	FuncDeleteEvent     = "handleDelete"
	FuncAvailability    = "handleAvailable"
	FuncProcedureImage  = "sendManyChatFlowWithField"
	FuncAssignToHuman   = "sendManyChatFlowAssignment"
	fileSearchToolType  = openai.ToolType("file_search")
	providerDescription = "Nome da médica responsável pelo atendimento (Marina ou Marília)"
)

type schema map[string]any

func object(properties schema, required ...string) json.RawMessage {
	if required == nil {
		required = []string{}
	}
	raw, err := json.Marshal(schema{
		"type":       "object",
		"properties": properties,
		"required":   required,
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func str(description string) schema {
	return schema{"type": "string", "description": description}
}

// Catalog returns the tool definitions attached to every run: file search
// over the clinic knowledge base plus the five clinic functions.
func Catalog() []openai.Tool {
	return []openai.Tool{
		{Type: fileSearchToolType},
		function(FuncCreateEvent, "Cria um evento no Google Calendar para o Espaço Zaneti.", object(schema{
			"Name":            str("Nome completo do paciente"),
			"CPF":             str("CPF do paciente"),
			"Telefone":        str("Telefone do paciente"),
			"Nascimento":      str("Data de nascimento do paciente no formato YYYY-MM-DD"),
			"Email":           schema{"type": "string", "format": "email", "description": "Email do paciente"},
			"Horario":         schema{"type": "string", "format": "date-time", "description": "Data e hora do agendamento no formato ISO 8601"},
			"Procedimento":    str("Procedimento ou plano escolhido pelo paciente"),
			"ComoNosConheceu": str("Como o paciente conheceu o Espaço Zaneti (e.g., Instagram, Google, indicação)"),
			"modelo":          str("atendimento presencial ou online"),
			"endereco":        str("endereço com cep"),
			"DraResponsavel":  str(providerDescription),
			"PagamentoConfirmado": schema{
				"type":        "boolean",
				"description": "Se o pagamento antecipado foi confirmado",
			},
		}, "Name", "Email", "Horario", "Telefone", "Procedimento", "ComoNosConheceu", "modelo", "DraResponsavel")),
		function(FuncProcedureImage, "envia uma imagem antes e depois de procedimentos estéticos, baseado no interesse do usuário", object(schema{
			"DraResponsavel": str(providerDescription),
			"procedureName": str("Nome do procedimento estético de interesse do usuário. Opções disponíveis: " +
				"tratamento anti-rugas (botox), full face, bigode de chines, Rinomodelacao, Olheira, " +
				"Remocao de gordura na papada (lipo de papada HD), Lábios (técnica PERFECT LIPS), Queixo e Mandíbula," +
				"tratamento anti-envelhecimento(Sculptra e o Elleva)."),
		}, "procedureName", "DraResponsavel")),
		function(FuncAssignToHuman, "atribui a conversa para um atendente humano", object(schema{
			"DraResponsavel": str(providerDescription),
		}, "DraResponsavel")),
		function(FuncAvailability, "Recupera horários disponíveis para agendamento.", object(schema{})),
		function(FuncDeleteEvent, "Cancela um evento no Google Calendar.", object(schema{
			"EventID": str("ID do evento a ser cancelado"),
		}, "EventID")),
	}
}

func function(name, description string, params json.RawMessage) openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}
