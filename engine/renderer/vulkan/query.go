package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// queryPools are the queries of one command pool.
type queryPools struct {
	timestamps vk.QueryPool
	statistics vk.QueryPool
}

const pipelineStatistics = vk.QueryPipelineStatisticFlags(
	vk.QueryPipelineStatisticInputAssemblyVerticesBit |
		vk.QueryPipelineStatisticInputAssemblyPrimitivesBit |
		vk.QueryPipelineStatisticVertexShaderInvocationsBit |
		vk.QueryPipelineStatisticClippingInvocationsBit |
		vk.QueryPipelineStatisticClippingPrimitivesBit |
		vk.QueryPipelineStatisticFragmentShaderInvocationsBit |
		vk.QueryPipelineStatisticComputeShaderInvocationsBit)

func (b *Backend) createQueryPools(count uint32) error {
	b.queries = make([]queryPools, count)
	device := b.context.Device.LogicalDevice
	for i := range b.queries {
		timestampInfo := vk.QueryPoolCreateInfo{
			SType:      vk.StructureTypeQueryPoolCreateInfo,
			QueryType:  vk.QueryTypeTimestamp,
			QueryCount: metadata.GPU_TIME_QUERIES_PER_FRAME * 2,
		}
		if res := vk.CreateQueryPool(device, &timestampInfo, b.context.Allocator, &b.queries[i].timestamps); res != vk.Success {
			err := core.NewVulkanError("vkCreateQueryPool", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}

		if !b.context.Device.PipelineStatistics {
			continue
		}
		statisticsInfo := vk.QueryPoolCreateInfo{
			SType:              vk.StructureTypeQueryPoolCreateInfo,
			QueryType:          vk.QueryTypePipelineStatistics,
			QueryCount:         1,
			PipelineStatistics: pipelineStatistics,
		}
		if res := vk.CreateQueryPool(device, &statisticsInfo, b.context.Allocator, &b.queries[i].statistics); res != vk.Success {
			err := core.NewVulkanError("vkCreateQueryPool", VulkanResultString(res, true))
			core.LogError(err.Error())
			return err
		}
	}
	return nil
}

func (b *Backend) destroyQueryPools() {
	device := b.context.Device.LogicalDevice
	for i := range b.queries {
		if b.queries[i].timestamps != vk.NullQueryPool {
			vk.DestroyQueryPool(device, b.queries[i].timestamps, b.context.Allocator)
		}
		if b.queries[i].statistics != vk.NullQueryPool {
			vk.DestroyQueryPool(device, b.queries[i].statistics, b.context.Allocator)
		}
	}
	b.queries = nil
}

func (b *Backend) readQueries(pool vk.QueryPool, first, count uint32, flags vk.QueryResultFlags, stride uint32, values uint32) ([]uint64, error) {
	data := make([]uint64, values)
	var res vk.Result
	b.context.lockPool.SafeCall(QueryManagement, func() error {
		res = vk.GetQueryPoolResults(b.context.Device.LogicalDevice, pool, first, count,
			uint(len(data)*8), unsafe.Pointer(&data[0]), vk.DeviceSize(stride),
			flags|vk.QueryResultFlags(vk.QueryResult64Bit))
		return nil
	})
	if res == vk.NotReady {
		return nil, errors.Newf("query results not ready")
	}
	if res != vk.Success {
		err := core.NewVulkanError("vkGetQueryPoolResults", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return data, nil
}

// GetTimestampResults is called after the frame fence, so the results are never waited for.
func (b *Backend) GetTimestampResults(poolIndex, count uint32) ([]uint64, error) {
	if int(poolIndex) >= len(b.queries) {
		return nil, errors.Wrapf(core.ErrInvalidHandle, "query pool %d of %d", poolIndex, len(b.queries))
	}
	if count == 0 {
		return nil, nil
	}
	count = min(count, metadata.GPU_TIME_QUERIES_PER_FRAME*2)
	return b.readQueries(b.queries[poolIndex].timestamps, 0, count, 0, 8, count)
}

func (b *Backend) GetPipelineStatistics(poolIndex uint32) ([]uint64, error) {
	if int(poolIndex) >= len(b.queries) {
		return nil, errors.Wrapf(core.ErrInvalidHandle, "query pool %d of %d", poolIndex, len(b.queries))
	}
	pool := b.queries[poolIndex].statistics
	if pool == vk.NullQueryPool {
		return nil, errors.Wrap(core.ErrUnsupported, "pipeline statistics queries")
	}
	count := metadata.GPU_PIPELINE_STATISTICS_COUNT
	return b.readQueries(pool, 0, 1, 0, count*8, count)
}
