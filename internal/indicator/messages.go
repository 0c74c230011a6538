package indicator

import (
	"os"
	"strings"

	"github.com/rbright/rehearse/internal/fsm"
	"golang.org/x/text/language"
)

var localeMatcher = language.NewMatcher([]language.Tag{language.English, language.Spanish})

type messages struct {
	phases    map[fsm.Phase]string
	errorText string
}

func messagesFromEnv() messages {
	return localeMessages(resolveLocale(os.Getenv("LANG")))
}

// resolveLocale maps a POSIX locale such as "es_MX.UTF-8" to a supported base language.
func resolveLocale(raw string) language.Base {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexAny(raw, ".@"); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.ReplaceAll(raw, "_", "-")

	tag, _, _ := localeMatcher.Match(language.Make(raw))
	base, _ := tag.Base()
	return base
}

func localeMessages(base language.Base) messages {
	spanish, _ := language.Spanish.Base()
	if base == spanish {
		return messages{
			phases: map[fsm.Phase]string{
				fsm.PhaseIdle:             "Preparando",
				fsm.PhaseAwaitingAnswer:   "Listo para responder",
				fsm.PhaseRecording:        "Grabando…",
				fsm.PhaseProcessingAnswer: "Analizando respuesta…",
				fsm.PhaseReadyToAdvance:   "Respuesta lista",
				fsm.PhaseSummarizing:      "Resumiendo sesión…",
				fsm.PhaseComplete:         "Sesión completa",
			},
			errorText: "Error en la sesión",
		}
	}
	return messages{
		phases: map[fsm.Phase]string{
			fsm.PhaseIdle:             "Preparing",
			fsm.PhaseAwaitingAnswer:   "Ready to answer",
			fsm.PhaseRecording:        "Recording…",
			fsm.PhaseProcessingAnswer: "Analyzing answer…",
			fsm.PhaseReadyToAdvance:   "Answer ready",
			fsm.PhaseSummarizing:      "Summarizing session…",
			fsm.PhaseComplete:         "Session complete",
		},
		errorText: "Session error",
	}
}

func (m messages) label(phase fsm.Phase) string {
	if text, ok := m.phases[phase]; ok {
		return text
	}
	return string(phase)
}

// Label returns the display text for phase in the environment's locale.
func Label(phase fsm.Phase) string {
	return messagesFromEnv().label(phase)
}
