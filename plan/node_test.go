package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "Scan", KindScan.String())
	assert.Equal(t, "Join", KindJoin.String())
	assert.Equal(t, "Unknown", Kind(999).String())
}

func TestScanBindsItsAlias(t *testing.T) {
	s := NewScan(nil, "n", nil, nil)
	assert.Equal(t, KindScan, s.Kind())
	assert.Equal(t, "n", s.Binds())
	assert.Nil(t, s.Children())
}

func TestExpandChildrenIsInput(t *testing.T) {
	scan := NewScan(nil, "n", nil, nil)
	expand := NewExpand(nil, scan, "n", "e", "m", nil, 0)
	assert.Equal(t, []Node{scan}, expand.Children())
	assert.Equal(t, "m", expand.Binds())
}

func TestJoinKindString(t *testing.T) {
	assert.Equal(t, "INNER", JoinInner.String())
	assert.Equal(t, "LEFT", JoinLeft.String())
	assert.Equal(t, "ANTI", JoinAnti.String())
	assert.Equal(t, "SEMI", JoinSemi.String())
}

func TestJoinChildrenIsLeftThenRight(t *testing.T) {
	left := NewScan(nil, "a", nil, nil)
	right := NewScan(nil, "b", nil, nil)
	join := NewJoin(nil, left, right, nil, JoinInner)
	assert.Equal(t, []Node{left, right}, join.Children())
}

func TestInsertChildrenNilWhenStandalone(t *testing.T) {
	standalone := NewInsert(nil, nil, "n")
	assert.Nil(t, standalone.Children())

	chained := NewInsert(nil, NewScan(nil, "n", nil, nil), "m")
	assert.Len(t, chained.Children(), 1)
}

func TestUnionChildrenIsAllInputs(t *testing.T) {
	a := NewScan(nil, "a", nil, nil)
	b := NewScan(nil, "b", nil, nil)
	u := NewUnion(nil, []Node{a, b}, true)
	assert.Equal(t, []Node{a, b}, u.Children())
	assert.True(t, u.All)
}

func TestWalkVisitsEveryNodeInPreOrder(t *testing.T) {
	scan1 := NewScan(nil, "n", nil, nil)
	scan2 := NewScan(nil, "m", nil, nil)
	join := NewJoin(nil, scan1, scan2, nil, JoinInner)
	filter := NewFilter(nil, join, nil)

	var visited []Node
	Walk(filter, func(n Node) { visited = append(visited, n) })

	assert.Equal(t, []Node{filter, join, scan1, scan2}, visited)
}

func TestWalkHandlesNilWithoutPanicking(t *testing.T) {
	var visited []Node
	Walk(nil, func(n Node) { visited = append(visited, n) })
	assert.Empty(t, visited)
}
