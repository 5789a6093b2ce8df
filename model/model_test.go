// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package model_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/koruframe/model"
)

func TestInstanceTransform(t *testing.T) {
	c := qt.New(t)

	i := model.NewInstance()
	c.Assert(model.Transform(i), qt.Equals, glm.Ident4())

	i.SetPosition(glm.Translate3D(1, 2, 3))
	i.SetRotation(glm.HomogRotate3DZ(glm.DegToRad(90)))
	p := model.Transform(i).Mul4x1(glm.Vec4{1, 0, 0, 1})
	c.Assert(p.ApproxEqualThreshold(glm.Vec4{1, 3, 3, 1}, 1e-5), qt.IsTrue, qt.Commentf("%v", p))
}

func TestUniformMVP(t *testing.T) {
	c := qt.New(t)

	u := model.Uniform{
		Model:      glm.Translate3D(0, 0, -1),
		View:       glm.Ident4(),
		Projection: glm.Scale3D(2, 2, 2),
	}
	p := u.MVP().Mul4x1(glm.Vec4{0, 0, 0, 1})
	c.Assert(p, qt.Equals, glm.Vec4{0, 0, -2, 1})
}
