package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/arwa/internal/model/persona"
)

// buildSystemPrompt returns the persona instruction, or a basic identity line
// when the persona carries none.
func buildSystemPrompt(p persona.Persona) string {
	if instruction := strings.TrimSpace(p.SystemInstruction); instruction != "" {
		return instruction
	}
	if p.Name == "" {
		return ""
	}
	if p.Title == "" {
		return fmt.Sprintf("اسمك %s.", p.Name)
	}
	return fmt.Sprintf("أنتِ %s، %s. اسمك %s.", p.Name, p.Title, p.Name)
}
