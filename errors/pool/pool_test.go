package pool_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nabbar/edged/errors/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolEmpty(t *testing.T) {
	p := pool.New()
	require.Equal(t, 0, p.Len())
	require.NoError(t, p.Error())
}

func TestPoolSingle(t *testing.T) {
	p := pool.New()
	p.Add(errors.New("boom"))

	require.Equal(t, 1, p.Len())
	assert.EqualError(t, p.Error(), "boom")
}

func TestPoolNilIgnored(t *testing.T) {
	p := pool.New()
	p.Add(nil)
	p.Add(errors.New("boom"))
	p.Add(nil)

	assert.Equal(t, 1, p.Len())
}

func TestPoolJoinsMultiple(t *testing.T) {
	p := pool.New()
	p.Add(errors.New("first"))
	p.Add(errors.New("second"))

	err := p.Error()
	require.Error(t, err)
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "second")
}

func TestPoolConcurrentAdd(t *testing.T) {
	p := pool.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.Add(fmt.Errorf("err-%d", n))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, p.Len())
}
