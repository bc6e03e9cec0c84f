package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Lexicon struct {
	FollowUpMarkers   []string        `yaml:"follow_up_markers"`
	Demonstratives    []string        `yaml:"demonstratives"`
	MetaMarkers       []string        `yaml:"meta_markers"`
	Greetings         []string        `yaml:"greetings"`
	IdentityMarkers   []string        `yaml:"identity_markers"`
	StopWords         []string        `yaml:"stop_words"`
	GenericHeads      []string        `yaml:"generic_heads"`
	MaxSmallTalkWords int             `yaml:"max_small_talk_words"`
	Canned            []CannedInsight `yaml:"canned"`
}

// CannedInsight answers greeting and identity questions without a model call.
// An entry with Markers applies only when the matched marker is listed; an entry without Markers is the
// category fallback.
type CannedInsight struct {
	Category          Category `yaml:"category"`
	Markers           []string `yaml:"markers"`
	KeyFinding        string   `yaml:"key_finding"`
	SupportingMetrics []string `yaml:"supporting_metrics"`
	Recommendations   []string `yaml:"recommendations"`
	RelatedQuestions  []string `yaml:"related_questions"`
}

func DefaultLexicon() Lexicon {
	return Lexicon{
		FollowUpMarkers: []string{
			"previously", "earlier", "before", "you said", "you mentioned", "i mentioned", "the previous", "the last one",
			"anteriormente", "mencioné", "mencionaste", "dijiste", "la anterior", "el anterior", "antes", "previamente",
		},
		Demonstratives: []string{
			"that", "those",
			"esa", "ese", "esos", "esas", "aquella", "aquel", "aquellos", "aquellas",
		},
		MetaMarkers: []string{
			"what did i ask", "what have we discussed", "my first question", "my last question", "our conversation",
			"qué te pregunté", "que te pregunte", "primera pregunta", "última pregunta", "nuestra conversación",
		},
		Greetings: []string{
			"hello", "hi", "hey", "good morning", "good afternoon", "how are you", "thank you", "thanks", "goodbye",
			"hola", "buenos días", "buenas tardes", "buenas noches", "cómo estás", "como estas", "gracias", "adiós",
		},
		IdentityMarkers: []string{
			"who are you", "what are you", "chatgpt", "gpt", "openai",
			"quién eres", "quien eres", "qué eres", "sos", "eres",
		},
		StopWords: []string{
			"a", "about", "across", "against", "all", "an", "and", "any", "are", "at", "between", "by", "can", "could", "did", "do", "does", "for", "from",
			"give", "has", "have", "how", "i", "in", "is", "it", "list", "me", "much", "many", "of", "on", "or", "our",
			"please", "show", "tell", "than", "the", "to", "versus", "vs", "was", "we", "were", "what", "which", "with", "you",
			"al", "con", "cuál", "cual", "cuáles", "cuales", "dame", "de", "del", "el", "en", "es", "la", "las", "lo",
			"los", "me", "muéstrame", "muestrame", "para", "por", "qué", "que", "sobre", "son", "un", "una", "y",
		},
		GenericHeads:      []string{"one", "ones", "uno", "una", "unos", "unas"},
		MaxSmallTalkWords: 6,
		Canned: []CannedInsight{
			{
				Category:   CategoryIdentity,
				Markers:    []string{"chatgpt", "gpt", "openai", "quién eres", "quien eres", "qué eres", "sos", "eres"},
				KeyFinding: "Soy un asistente de análisis de datos, basado en IA pero especializado en el análisis de experimentos y métricas de negocio.",
				SupportingMetrics: []string{
					"Capacidad de análisis de datos de tiendas",
					"Memoria conversacional",
					"Consultas SQL automáticas",
				},
				Recommendations: []string{
					"Prueba preguntas como '¿Cuántas tiendas tenemos por región?'",
					"Explora los experimentos con '¿Qué experimentos se han realizado?'",
				},
				RelatedQuestions: []string{"¿Qué puedes hacer?", "¿Qué datos tienes disponibles?", "¿Cómo puedo analizar experimentos?"},
			},
			{
				Category:   CategoryIdentity,
				KeyFinding: "I am a data analysis assistant. I translate business questions into SQL over the loaded datasets and explain the results.",
				SupportingMetrics: []string{
					"Store and experiment data analysis",
					"Conversation memory within a session",
					"Automatic SQL generation",
				},
				Recommendations:  []string{"Try asking 'How many stores do we have per region?'"},
				RelatedQuestions: []string{"What can you do?", "What data is available?", "How can I analyze experiments?"},
			},
			{
				Category:   CategoryGreeting,
				Markers:    []string{"hola", "buenos días", "buenas tardes", "buenas noches", "cómo estás", "como estas", "gracias", "adiós"},
				KeyFinding: "¡Hola! Soy tu asistente de análisis de datos. Estoy aquí para ayudarte a analizar experimentos, métricas de tiendas y datos de negocio.",
				SupportingMetrics: []string{
					"Análisis por regiones disponible",
					"Datos de experimentos A/B",
				},
				Recommendations: []string{
					"Empieza con una pregunta sobre las tiendas",
					"Explora los experimentos realizados",
					"Analiza métricas por región",
				},
				RelatedQuestions: []string{"¿Cuántas tiendas tenemos?", "¿Qué experimentos hay disponibles?", "¿Cómo está el performance por región?"},
			},
			{
				Category:   CategoryGreeting,
				KeyFinding: "Hello! I am your data analysis assistant. Ask me about experiments, store metrics or any business data that is loaded.",
				SupportingMetrics: []string{
					"Regional analysis available",
					"A/B experiment data",
				},
				Recommendations:  []string{"Start with a question about stores", "Explore the experiments", "Compare metrics by region"},
				RelatedQuestions: []string{"How many stores do we have?", "Which experiments are available?", "How is performance by region?"},
			},
		},
	}
}

// LoadLexicon reads a YAML lexicon and fills any list it leaves empty from DefaultLexicon.
func LoadLexicon(path string) (Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("read lexicon: %w", err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return lex.WithDefaults(), nil
}

func (l Lexicon) WithDefaults() Lexicon {
	def := DefaultLexicon()
	if len(l.FollowUpMarkers) == 0 {
		l.FollowUpMarkers = def.FollowUpMarkers
	}
	if len(l.Demonstratives) == 0 {
		l.Demonstratives = def.Demonstratives
	}
	if len(l.MetaMarkers) == 0 {
		l.MetaMarkers = def.MetaMarkers
	}
	if len(l.Greetings) == 0 {
		l.Greetings = def.Greetings
	}
	if len(l.IdentityMarkers) == 0 {
		l.IdentityMarkers = def.IdentityMarkers
	}
	if len(l.StopWords) == 0 {
		l.StopWords = def.StopWords
	}
	if len(l.GenericHeads) == 0 {
		l.GenericHeads = def.GenericHeads
	}
	if l.MaxSmallTalkWords <= 0 {
		l.MaxSmallTalkWords = def.MaxSmallTalkWords
	}
	if len(l.Canned) == 0 {
		l.Canned = def.Canned
	}
	return l
}
