package facevault_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/facevault"
	"github.com/hupe1980/facevault/extractor"
	"github.com/hupe1980/facevault/ingest"
	"github.com/hupe1980/facevault/match"
	"github.com/hupe1980/facevault/testutil"
)

// Example demonstrates enrolling a face and identifying it again.
func Example() {
	home, err := os.MkdirTemp("", "facevault-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(home)

	// Stand-in for a real model server.
	ext := extractor.Func(func(_ context.Context, image []byte) ([]float32, error) {
		return testutil.HashEmbedding(image, 128), nil
	})

	ctx := context.Background()
	eng, err := facevault.Open(ctx, home, ext, facevault.WithDimension(128))
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close()

	out, err := eng.Ingest(ctx, ingest.Artifact{
		Name: "0010010071423400000001168FRANCISCO_DAS_CHAGAS_DUARTE.jpg",
		Data: []byte("portrait"),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.Accepted, out.Record.IdentityKey, out.Record.TaxID)

	matches, err := eng.MatchImage(ctx, []byte("portrait"), 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(matches[0].Record.DisplayName, matches[0].Similarity)

	// Output:
	// true 1168 001.007.142-34
	// FRANCISCO DAS CHAGAS DUARTE 1
}

// Example_thresholds shows how raw distances map to similarity scores.
func Example_thresholds() {
	th := match.Thresholds{Near: 500, Far: 1000}

	for _, d := range []float32{100, 750, 1200} {
		fmt.Printf("%.0f -> %.2f\n", d, th.Similarity(d))
	}

	// Output:
	// 100 -> 1.00
	// 750 -> 0.50
	// 1200 -> 0.00
}
