package loadbalance

import (
	"math/rand"

	"p4rpc/registry"
)

type WeightedRandomBalancer struct{}

// Pick ignores negative weights. If no instance carries a positive weight
// the choice is uniform.
func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, registry.ErrNoInstances
	}

	// 计算总权重
	totalWeight := 0
	for _, v := range instances {
		totalWeight += max(v.Weight, 0)
	}
	if totalWeight == 0 {
		return &instances[rand.Intn(len(instances))], nil
	}

	// 生成一个随机数，范围是0到总权重
	r := rand.Intn(totalWeight)
	for i := range instances {
		r -= max(instances[i].Weight, 0)
		if r < 0 {
			return &instances[i], nil
		}
	}

	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
