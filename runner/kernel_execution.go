package runner

import (
	"fmt"
)

// ExecuteKernel runs a configured and compiled kernel: CopyTo uploads,
// launch, device synchronization, then CopyBack downloads.
func (kr *Runner) ExecuteKernel(name string) error {
	config, exists := kr.KernelConfigs[name]
	if !exists {
		return fmt.Errorf("kernel %s not configured - use ConfigureKernel first", name)
	}
	kernel, exists := kr.Kernels[name]
	if !exists {
		return fmt.Errorf("kernel %s not compiled - use BuildKernel first", name)
	}

	var pre, post []ParameterUsage
	for _, param := range config.Parameters {
		if param.HasAction(CopyTo) {
			pre = append(pre, ParameterUsage{Binding: param.Binding, Actions: CopyTo})
		}
		if param.HasAction(CopyBack) {
			post = append(post, ParameterUsage{Binding: param.Binding, Actions: CopyBack})
		}
	}
	if err := kr.executeCopyActions(pre); err != nil {
		return fmt.Errorf("pre-kernel copy failed: %w", err)
	}

	args, err := kr.buildKernelArguments(config)
	if err != nil {
		return fmt.Errorf("failed to build arguments: %w", err)
	}
	if err := kernel.RunWithArgs(args...); err != nil {
		return fmt.Errorf("kernel execution failed: %w", err)
	}
	kr.Device.Finish()

	if err := kr.executeCopyActions(post); err != nil {
		return fmt.Errorf("post-kernel copy failed: %w", err)
	}
	return nil
}

func (kr *Runner) buildKernelArguments(config *KernelConfig) ([]interface{}, error) {
	kargs := config.Arguments()
	args := make([]interface{}, 0, len(kargs))
	for _, karg := range kargs {
		mem, exists := kr.PooledMemory[karg.MemoryKey]
		if !exists {
			return nil, fmt.Errorf("memory for %s not found", karg.MemoryKey)
		}
		args = append(args, mem)
	}
	return args, nil
}
