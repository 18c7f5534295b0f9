package tfbuilder

import (
	"context"
	"testing"
	"time"

	"smc-enginev1/internal/model"
)

// makeM1 creates a closed M1 candle at the given Unix second.
func makeM1(symbol string, unixSec int64, open, high, low, close_ float64) model.Candle {
	return model.Candle{
		Symbol: symbol,
		TF:     model.TFM1,
		TS:     time.Unix(unixSec, 0).UTC(),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close_,
		Count:  1,
	}
}

func TestBuilder_M5_Resampling(t *testing.T) {
	b := New([]int{model.TFM5})
	outCh := make(chan model.Candle, 5000)

	baseTS := int64(1700000100)
	baseTS = baseTS - (baseTS % 300) // align to 5m boundary

	// Five M1 candles fill one M5 bucket.
	for i := int64(0); i < 5; i++ {
		b.Process(makeM1("EURUSD", baseTS+i*60, 1.1000+float64(i)*0.0001, 1.1010+float64(i)*0.0001, 1.0990, 1.1005+float64(i)*0.0001), outCh)
	}

	// Only forming snapshots so far.
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			t.Fatalf("unexpected finalized candle before bucket close: %+v", c)
		}
	}

	// First M1 of the next bucket finalizes the previous one.
	b.Process(makeM1("EURUSD", baseTS+300, 1.1020, 1.1030, 1.1010, 1.1025), outCh)

	var finalized *model.Candle
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			finalized = &c
			break
		}
	}

	if finalized == nil {
		t.Fatal("expected a finalized candle after bucket close")
	}
	c := *finalized
	if c.TF != model.TFM5 {
		t.Errorf("expected TF=%d, got %d", model.TFM5, c.TF)
	}
	if c.Symbol != "EURUSD" {
		t.Errorf("expected symbol=EURUSD, got %s", c.Symbol)
	}
	if c.Open != 1.1000 {
		t.Errorf("expected open=1.1000, got %v", c.Open)
	}
	if c.Close != 1.1005+4*0.0001 {
		t.Errorf("expected close=1.1009, got %v", c.Close)
	}
	if c.High != 1.1010+4*0.0001 {
		t.Errorf("expected high=1.1014, got %v", c.High)
	}
	if c.Low != 1.0990 {
		t.Errorf("expected low=1.0990, got %v", c.Low)
	}
	if c.Count != 5 {
		t.Errorf("expected count=5, got %d", c.Count)
	}
	if c.Forming {
		t.Error("expected forming=false")
	}
}

func TestBuilder_MultipleTFs(t *testing.T) {
	b := New([]int{model.TFM5, model.TFM15})
	outCh := make(chan model.Candle, 10000)

	baseTS := int64(1700000100)
	baseTS = baseTS - (baseTS % 900) // align to 15m boundary

	// 15 M1 candles = 3 full M5 buckets and 1 full M15 bucket.
	for i := int64(0); i < 15; i++ {
		b.Process(makeM1("GBPUSD", baseTS+i*60, 1.2700, 1.2710, 1.2690, 1.2705), outCh)
	}

	// Roll both buckets over.
	b.Process(makeM1("GBPUSD", baseTS+900, 1.2720, 1.2730, 1.2710, 1.2725), outCh)

	var m5, m15 []model.Candle
	for len(outCh) > 0 {
		c := <-outCh
		if c.Forming {
			continue
		}
		switch c.TF {
		case model.TFM5:
			m5 = append(m5, c)
		case model.TFM15:
			m15 = append(m15, c)
		}
	}

	if len(m5) != 3 {
		t.Errorf("expected 3 finalized M5 candles, got %d", len(m5))
	}
	if len(m15) != 1 {
		t.Errorf("expected 1 finalized M15 candle, got %d", len(m15))
	}

	if len(m15) > 0 && m15[0].Count != 15 {
		t.Errorf("M15 candle count: expected 15, got %d", m15[0].Count)
	}
}

func TestBuilder_MultiSymbol(t *testing.T) {
	b := New([]int{model.TFM5})
	outCh := make(chan model.Candle, 5000)

	baseTS := int64(1700000100)
	baseTS = baseTS - (baseTS % 300)

	for i := int64(0); i < 5; i++ {
		b.Process(makeM1("EURUSD", baseTS+i*60, 1.10, 1.11, 1.09, 1.105), outCh)
		b.Process(makeM1("GBPUSD", baseTS+i*60, 1.27, 1.28, 1.26, 1.275), outCh)
	}

	b.Process(makeM1("EURUSD", baseTS+300, 1.10, 1.11, 1.09, 1.105), outCh)
	b.Process(makeM1("GBPUSD", baseTS+300, 1.27, 1.28, 1.26, 1.275), outCh)

	symbols := map[string]bool{}
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			symbols[c.Symbol] = true
		}
	}

	if !symbols["EURUSD"] || !symbols["GBPUSD"] {
		t.Errorf("expected finalized candles for both symbols, got %v", symbols)
	}
}

func TestBuilder_Run(t *testing.T) {
	b := New([]int{model.TFM5})
	candleCh := make(chan model.Candle, 200)
	outCh := make(chan model.Candle, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx, candleCh, outCh)
		close(done)
	}()

	baseTS := int64(1700000100)
	baseTS = baseTS - (baseTS % 300)

	for i := int64(0); i <= 5; i++ {
		candleCh <- makeM1("EURUSD", baseTS+i*60, 1.10, 1.11, 1.09, 1.105)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	finalized := 0
	for {
		select {
		case c := <-outCh:
			if !c.Forming {
				finalized++
			}
		default:
			goto drained
		}
	}
drained:

	if finalized < 1 {
		t.Errorf("expected at least 1 finalized TF candle, got %d", finalized)
	}
}

func TestBuilder_SkipsFormingInput(t *testing.T) {
	b := New([]int{model.TFM5})
	outCh := make(chan model.Candle, 100)

	c := makeM1("EURUSD", 1700000100, 1.10, 1.11, 1.09, 1.105)
	c.Forming = true
	b.Process(c, outCh)

	if len(outCh) != 0 {
		t.Errorf("forming input must be ignored, got %d outputs", len(outCh))
	}
}

func TestBuilder_WeekendGap_FinalizesOldBucket(t *testing.T) {
	b := New([]int{model.TFM5})
	outCh := make(chan model.Candle, 5000)

	friday := int64(1700000100)
	friday = friday - (friday % 300)

	b.Process(makeM1("EURUSD", friday, 1.10, 1.11, 1.09, 1.105), outCh)
	for len(outCh) > 0 {
		<-outCh
	}

	// Next candle two days later: the Friday bucket must finalize, not be
	// rejected as stale.
	monday := friday + 2*24*3600
	b.Process(makeM1("EURUSD", monday, 1.12, 1.13, 1.11, 1.125), outCh)

	var finalized *model.Candle
	for len(outCh) > 0 {
		c := <-outCh
		if !c.Forming {
			finalized = &c
			break
		}
	}
	if finalized == nil {
		t.Fatal("expected Friday bucket to finalize across the weekend gap")
	}
	if finalized.TS.Unix() != friday {
		t.Errorf("expected finalized bucket at %d, got %d", friday, finalized.TS.Unix())
	}
}
