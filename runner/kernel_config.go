package runner

import (
	"fmt"
	"strings"
)

// KernelConfig names the bindings a kernel takes, in argument order, and
// the copies performed around each execution.
type KernelConfig struct {
	Name       string
	Parameters []ParameterUsage
}

// KernelArgument is one entry of a generated kernel signature.
type KernelArgument struct {
	Name      string
	Type      string
	MemoryKey string
	IsConst   bool
}

// GetParameter finds a parameter usage by name
func (kc *KernelConfig) GetParameter(name string) *ParameterUsage {
	for i := range kc.Parameters {
		if kc.Parameters[i].Binding.Name == name {
			return &kc.Parameters[i]
		}
	}
	return nil
}

// ConfigureKernel creates a kernel-specific parameter configuration
func (kr *Runner) ConfigureKernel(name string, params ...*ParamConfig) (*KernelConfig, error) {
	if !kr.IsAllocated {
		return nil, fmt.Errorf("device memory not allocated - call AllocateDevice first")
	}
	config := &KernelConfig{
		Name:       name,
		Parameters: make([]ParameterUsage, 0, len(params)),
	}
	for _, param := range params {
		if param.binding == nil {
			return nil, fmt.Errorf("kernel %s: no binding named %s", name, param.name)
		}
		if param.binding.IsStatic {
			if param.actions != NoAction {
				return nil, fmt.Errorf("kernel %s: static matrix %s cannot be copied", name, param.name)
			}
		} else if param.actions&CopyBack != 0 && !param.binding.IsOutput {
			return nil, fmt.Errorf("kernel %s: input %s cannot be copied back", name, param.name)
		}
		if config.GetParameter(param.name) != nil {
			return nil, fmt.Errorf("kernel %s: %s listed twice", name, param.name)
		}
		config.Parameters = append(config.Parameters, ParameterUsage{
			Binding: param.binding,
			Actions: param.actions,
		})
	}
	kr.KernelConfigs[name] = config
	return config, nil
}

// Param creates a parameter configuration for a named binding
func (kr *Runner) Param(name string) *ParamConfig {
	return &ParamConfig{
		name:    name,
		binding: kr.GetBinding(name),
	}
}

// ParamConfig is a lightweight builder for configuring parameter actions
type ParamConfig struct {
	name    string
	binding *DeviceBinding
	actions ActionFlags
}

// CopyTo sets the parameter to copy from host to device
func (pc *ParamConfig) CopyTo() *ParamConfig {
	pc.actions |= CopyTo
	return pc
}

// CopyBack sets the parameter to copy from device to host
func (pc *ParamConfig) CopyBack() *ParamConfig {
	pc.actions |= CopyBack
	return pc
}

// Copy sets the parameter for bidirectional copy
func (pc *ParamConfig) Copy() *ParamConfig {
	pc.actions |= Copy
	return pc
}

// Arguments lists the kernel arguments of a configuration: K first, then
// the global pointer and offsets of every array. Static matrices live in
// the preamble and take no argument.
func (kc *KernelConfig) Arguments() []KernelArgument {
	args := []KernelArgument{{
		Name:      "K",
		Type:      "int_t*",
		MemoryKey: "K",
		IsConst:   true,
	}}
	for _, usage := range kc.Parameters {
		b := usage.Binding
		if b.IsStatic {
			continue
		}
		args = append(args,
			KernelArgument{
				Name:      b.Name + "_global",
				Type:      TypeName(b.DataType) + "*",
				MemoryKey: b.Name + "_global",
				IsConst:   !b.IsOutput,
			},
			KernelArgument{
				Name:      b.Name + "_offsets",
				Type:      "int_t*",
				MemoryKey: b.Name + "_offsets",
				IsConst:   true,
			})
	}
	return args
}

// GetSignature generates the parameter list to paste into an @kernel
// declaration.
func (kc *KernelConfig) GetSignature() string {
	args := kc.Arguments()
	params := make([]string, len(args))
	for i, a := range args {
		constStr := ""
		if a.IsConst {
			constStr = "const "
		}
		params[i] = fmt.Sprintf("%s%s %s", constStr, a.Type, a.Name)
	}
	return strings.Join(params, ",\n\t")
}
