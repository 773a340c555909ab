/*
Package ports defines the driven ports (interfaces) for the Waypoint engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends and lock providers.

# Key Interfaces

  - CheckpointStore: Responsible for persisting and loading thread checkpoints.
  - DistributedLocker: Provides distributed locking for handling concurrent thread access.
*/
package ports
