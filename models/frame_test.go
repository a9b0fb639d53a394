package models

import (
	"errors"
	"math/rand"
	"testing"

	"mdpviz/grid_world"

	. "github.com/smartystreets/goconvey/convey"
)

// rightward values every state so that moving right is greedy.
type rightward struct{}

func (rightward) GetQValues(state int) ([]float64, error) {
	return []float64{0, 0, float64(state) + 1, 0}, nil
}

type failing struct{}

func (failing) GetQValues(state int) ([]float64, error) {
	return nil, errors.New("no values")
}

func newWorld() *grid_world.GridWorld {
	cfg := grid_world.EpisodeConfig{
		Mode:            grid_world.MODE_AUTOMATIC_RL,
		Width:           3,
		Height:          2,
		AgentStart:      &grid_world.Position{X: 0, Y: 0},
		LavaCells:       []grid_world.Position{{X: 2, Y: 0}},
		LavaIsTerminal:  true,
		LavaReward:      -10,
		GreenCells:      []grid_world.Position{{X: 2, Y: 1}},
		GreenIsTerminal: true,
		GreenReward:     10,
	}
	world, err := grid_world.New(cfg, rand.New(rand.NewSource(1)))
	So(err, ShouldBeNil)
	return world
}

func TestConvert(t *testing.T) {
	Convey("Given a small world", t, func() {
		world := newWorld()

		Convey("When converted without values", func() {
			frame, err := Convert(world, nil)
			So(err, ShouldBeNil)
			So(frame.Width, ShouldEqual, 3)
			So(frame.Height, ShouldEqual, 2)
			So(frame.Mode, ShouldEqual, grid_world.MODE_AUTOMATIC_RL)
			So(frame.Cells, ShouldHaveLength, 2)
			So(frame.Cells[0], ShouldHaveLength, 3)

			So(frame.Cells[0][2].Kind, ShouldEqual, LAVA)
			So(frame.Cells[0][2].Fill, ShouldEqual, "orangered")
			So(frame.Cells[0][2].Reward, ShouldEqual, -10)
			So(frame.Cells[1][2].Kind, ShouldEqual, GREEN)
			So(frame.Cells[1][0].Kind, ShouldEqual, EMPTY)
			So(frame.Cells[1][0].QValues, ShouldBeNil)
			So(frame.LastAction, ShouldEqual, "")

			So(frame.Entities, ShouldHaveLength, 1)
			So(frame.Entities[0].Kind, ShouldEqual, "agent")
			So(frame.Entities[0].X, ShouldEqual, 0)
		})

		Convey("When converted with values after a move", func() {
			_, _, _, err := world.Step(int(grid_world.Down))
			So(err, ShouldBeNil)
			frame, err := Convert(world, rightward{})
			So(err, ShouldBeNil)

			So(frame.LastAction, ShouldEqual, "down")
			So(frame.Entities[0].Y, ShouldEqual, 1)
			So(frame.Entities[0].DY, ShouldEqual, 1)

			cell := frame.Cells[1][1]
			So(cell.Max, ShouldEqual, 5)
			So(cell.QValues, ShouldResemble, []float64{0, 0, 5, 0})
			So(cell.PolicyAction, ShouldEqual, "right")
			So(cell.PolicyArrowRotation, ShouldEqual, 90)

			So(frame.Cells[0][2].PolicyAction, ShouldEqual, "")
		})

		Convey("When the value source fails the error is returned", func() {
			_, err := Convert(world, failing{})
			So(err, ShouldNotBeNil)
		})
	})
}
