package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	tmrand "github.com/tendermint/tendermint/libs/rand"

	"antcolony_demo/rpc/client"
	"antcolony_demo/types"
)

const pollPeriod = 50 * time.Millisecond

// roundResult 一次提案的结果
type roundResult struct {
	outcome string
	latency time.Duration
}

// proposer 对每个目标节点依次发起提案，并等待每一轮结束
type proposer struct {
	Targets []string
	Rounds  int
	Timeout time.Duration

	clients []*client.WSClient

	mtx      sync.Mutex
	results  []roundResult
	rejected int

	logger log.Logger
}

func newProposer(targets []string, rounds int, timeout time.Duration) *proposer {
	return &proposer{
		Targets: targets,
		Rounds:  rounds,
		Timeout: timeout,
		clients: make([]*client.WSClient, len(targets)),
		logger:  log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (p *proposer) SetLogger(l log.Logger) {
	p.logger = l
}

// Run 每个目标一个goroutine，全部结束后返回
func (p *proposer) Run() error {
	for i, target := range p.Targets {
		c, err := client.Dial(target)
		if err != nil {
			p.close()
			return err
		}
		c.SetLogger(p.logger.With("target", target))
		p.clients[i] = c
	}
	defer p.close()

	var wg sync.WaitGroup
	wg.Add(len(p.clients))
	for i := range p.clients {
		go func(i int) {
			defer wg.Done()
			p.proposeLoop(i)
		}(i)
	}
	wg.Wait()
	return nil
}

func (p *proposer) close() {
	for _, c := range p.clients {
		if c != nil {
			c.Close()
		}
	}
}

func (p *proposer) proposeLoop(connIndex int) {
	c := p.clients[connIndex]
	logger := p.logger.With("conn", connIndex)

	for i := 0; i < p.Rounds; i++ {
		value := fmt.Sprintf("bench-%d-%s", connIndex, tmrand.Str(8))
		start := time.Now()
		res, err := c.Propose(value)
		if err != nil {
			// 其他节点的round还没有结束
			logger.Debug("propose rejected", "err", err)
			p.mtx.Lock()
			p.rejected++
			p.mtx.Unlock()
			time.Sleep(pollPeriod)
			continue
		}

		outcome, err := p.waitRound(c, res.Round)
		if err != nil {
			logger.Error(errors.Wrapf(err, "round %v on conn #%d", res.Round, connIndex).Error())
			return
		}
		latency := time.Since(start)
		logger.Info("round finished", "round", res.Round, "outcome", outcome, "took", latency)

		p.mtx.Lock()
		p.results = append(p.results, roundResult{outcome: outcome, latency: latency})
		p.mtx.Unlock()
	}
}

func (p *proposer) waitRound(c *client.WSClient, round types.RoundID) (string, error) {
	deadline := time.Now().Add(p.Timeout)
	for time.Now().Before(deadline) {
		rs, err := c.Round()
		if err != nil {
			return "", err
		}
		if rs.Round != round {
			return "Superseded", nil
		}
		if rs.Step != "Exploring" && rs.Step != "Proposed" {
			return rs.LastOutcome, nil
		}
		time.Sleep(pollPeriod)
	}
	return "", errors.New("wait round timeout")
}

func (p *proposer) Results() ([]roundResult, int) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return append([]roundResult{}, p.results...), p.rejected
}
