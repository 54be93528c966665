// internal/insight/insight.go
package insight

import (
	"math/rand"
	"sync"
)

// Insight is the gated content a confirmed payment unlocks.
type Insight struct {
	Meme  string `json:"meme"`
	Score int    `json:"score"`
	Arb   string `json:"arb"`
	Risk  string `json:"risk"`
}

var (
	memes = []string{"PUMPED", "MOONSHOT", "SOLAI", "PHUB", "ARBITOR", "MOOON"}
	arbs  = []string{
		"Buy Raydium → Sell Jupiter",
		"Buy Orca → Sell Raydium",
		"Buy Jupiter → Sell Meteora",
		"SOL/USDC depth sweep",
	}
	risks = []string{"Low", "Medium", "High"}
)

// Generator samples one insight per confirmed payment. Safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// Generate returns a fresh insight with a score in [70, 99].
func (g *Generator) Generate() *Insight {
	g.mu.Lock()
	defer g.mu.Unlock()

	return &Insight{
		Meme:  memes[g.rnd.Intn(len(memes))],
		Score: g.rnd.Intn(30) + 70,
		Arb:   arbs[g.rnd.Intn(len(arbs))],
		Risk:  risks[g.rnd.Intn(len(risks))],
	}
}
