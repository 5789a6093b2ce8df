// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"errors"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/koruframe/gfx"
)

// PipelineCreateInfo describes a graphics pipeline without vertex input:
// shaders generate their own vertices and read per draw data from push
// constants. Viewport and scissor are dynamic.
type PipelineCreateInfo struct {
	RenderPass gfx.RenderPass
	Samples    gfx.SampleCount

	// SPIR-V code of both stages, entry point main.
	VertexShader   []byte
	FragmentShader []byte

	PushConstantSize   uint32
	PushConstantStages gfx.ShaderStageFlags

	DepthTest bool
	Blend     bool
}

// CreatePipeline builds a pipeline and its layout for a render pass of
// this device. Shader modules are released before returning.
func (d *Device) CreatePipeline(info PipelineCreateInfo) (gfx.Pipeline, gfx.PipelineLayout, error) {
	vertex, err := d.createShaderModule(info.VertexShader)
	if err != nil {
		return 0, 0, err
	}
	defer vk.DestroyShaderModule(d.device, vertex, nil)
	fragment, err := d.createShaderModule(info.FragmentShader)
	if err != nil {
		return 0, 0, err
	}
	defer vk.DestroyShaderModule(d.device, fragment, nil)

	plci := vk.PipelineLayoutCreateInfo{
		SType: vk.StructureTypePipelineLayoutCreateInfo,
	}
	if info.PushConstantSize > 0 {
		plci.PushConstantRangeCount = 1
		plci.PPushConstantRanges = []vk.PushConstantRange{{
			Offset:     0,
			Size:       info.PushConstantSize,
			StageFlags: vk.ShaderStageFlags(info.PushConstantStages),
		}}
	}

	var pipelineLayout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(d.device, &plci, nil, &pipelineLayout)); err != nil {
		return 0, 0, errors.New("vk.CreatePipelineLayout(): " + err.Error())
	}

	samples := vk.SampleCountFlagBits(info.Samples)
	if info.Samples <= gfx.SampleCount1 {
		samples = vk.SampleCount1Bit
	}

	var depthTest vk.Bool32 = vk.False
	if info.DepthTest {
		depthTest = vk.True
	}

	blend := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: 0xF,
		BlendEnable:    vk.False,
	}
	if info.Blend {
		blend.BlendEnable = vk.True
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		blend.DstAlphaBlendFactor = vk.BlendFactorZero
		blend.AlphaBlendOp = vk.BlendOpAdd
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: 2,
		PStages: []vk.PipelineShaderStageCreateInfo{
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageVertexBit,
				Module: vertex,
				PName:  safeString("main"),
			},
			{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageFragmentBit,
				Module: fragment,
				PName:  safeString("main"),
			},
		},
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  depthTest,
			DepthWriteEnable: depthTest,
			DepthCompareOp:   vk.CompareOpLess,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: samples,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     pipelineLayout,
		RenderPass: d.renderPasses.MustGet(uint64(info.RenderPass)),
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(d.device, nil, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		vk.DestroyPipelineLayout(d.device, pipelineLayout, nil)
		return 0, 0, errors.New("vk.CreateGraphicsPipelines(): " + err.Error())
	}
	return gfx.Pipeline(d.pipelines.Insert(pipelines[0])), gfx.PipelineLayout(d.layouts.Insert(pipelineLayout)), nil
}

// DestroyPipeline releases a pipeline and its layout.
func (d *Device) DestroyPipeline(p gfx.Pipeline, l gfx.PipelineLayout) {
	if pipeline, ok := d.pipelines.Remove(uint64(p)); ok {
		vk.DestroyPipeline(d.device, pipeline, nil)
	}
	if layout, ok := d.layouts.Remove(uint64(l)); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
	}
}

func (d *Device) createShaderModule(code []byte) (vk.ShaderModule, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		return nil, errors.New("vkr: shader code is not SPIR-V words")
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    sliceUint32(code),
	}

	var shaderModule vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(d.device, &smci, nil, &shaderModule)); err != nil {
		return nil, errors.New("vk.CreateShaderModule(): " + err.Error())
	}
	return shaderModule, nil
}
