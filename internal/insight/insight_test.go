package insight

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_FieldsWithinCatalog(t *testing.T) {
	g := NewGenerator(42)

	for i := 0; i < 200; i++ {
		in := g.Generate()
		assert.Contains(t, memes, in.Meme)
		assert.Contains(t, arbs, in.Arb)
		assert.Contains(t, risks, in.Risk)
		assert.GreaterOrEqual(t, in.Score, 70)
		assert.LessOrEqual(t, in.Score, 99)
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	a := NewGenerator(7)
	b := NewGenerator(7)

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestGenerate_ConcurrentUse(t *testing.T) {
	g := NewGenerator(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				in := g.Generate()
				if in.Score < 70 || in.Score > 99 {
					t.Errorf("score out of range: %d", in.Score)
				}
			}
		}()
	}
	wg.Wait()
}
